package sinks

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strconv"
	"strings"

	"simdash/logging"
)

// ConsoleSink writes one line per event:
//
//	playback.rate_throttled warn tick=12 synchronizer session=... {"from":10,"to":9}
type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if w == nil {
		w = io.Discard
	}
	return &ConsoleSink{logger: log.New(w, cfg.Prefix, log.LstdFlags|log.Lmicroseconds)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	var b strings.Builder
	b.WriteString(string(event.Type))
	b.WriteByte(' ')
	b.WriteString(event.Severity.String())
	b.WriteString(" tick=")
	b.WriteString(strconv.FormatUint(event.Tick, 10))
	if actor := event.Actor.String(); actor != "" {
		b.WriteByte(' ')
		b.WriteString(actor)
	}
	if event.TraceID != "" {
		b.WriteString(" session=")
		b.WriteString(event.TraceID)
	}
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		b.WriteByte(' ')
		b.Write(data)
	}
	s.logger.Print(b.String())
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}
