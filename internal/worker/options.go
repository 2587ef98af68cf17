package worker

import (
	"time"

	"github.com/haneul/wadispatch/internal/config"
	"github.com/haneul/wadispatch/internal/storage"
)

// Options configures the delivery loop. Zero values are replaced with
// production defaults by New.
type Options struct {
	// MaxRetries bounds delivery attempts per message.
	MaxRetries int
	// IdleDelay is the poll interval when the queue is drained.
	IdleDelay time.Duration
	// SendDelay paces the loop after a successful send.
	SendDelay time.Duration
	// FailureDelay backs the loop off after a failed attempt.
	FailureDelay time.Duration
	// SendTimeout bounds a single gateway call.
	SendTimeout time.Duration
	// CountryPrefix is prepended to recipient numbers that lack it.
	CountryPrefix string
	// MessageTypes is the eligible-type set for this deployment.
	MessageTypes []storage.MessageType
	// LeaseTimeout is how long a processing claim may go unresolved before
	// the sweeper returns the message to the queue.
	LeaseTimeout time.Duration
	// SweepInterval is how often the stuck-claim sweeper runs.
	SweepInterval time.Duration
}

func defaultOptions() Options {
	return Options{
		MaxRetries:    2,
		IdleDelay:     2 * time.Second,
		SendDelay:     1200 * time.Millisecond,
		FailureDelay:  3 * time.Second,
		SendTimeout:   30 * time.Second,
		CountryPrefix: "91",
		MessageTypes:  []storage.MessageType{storage.MessageTypeImage, storage.MessageTypeTemplate},
		LeaseTimeout:  5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// OptionsFromConfig maps the worker configuration section onto Options.
func OptionsFromConfig(cfg config.WorkerConfig) Options {
	types := make([]storage.MessageType, 0, len(cfg.MessageTypes))
	for _, t := range cfg.MessageTypes {
		types = append(types, storage.MessageType(t))
	}
	return Options{
		MaxRetries:    cfg.MaxRetries,
		IdleDelay:     cfg.IdleDelay,
		SendDelay:     cfg.SendDelay,
		FailureDelay:  cfg.FailureDelay,
		SendTimeout:   cfg.SendTimeout,
		CountryPrefix: cfg.CountryPrefix,
		MessageTypes:  types,
		LeaseTimeout:  cfg.LeaseTimeout,
		SweepInterval: cfg.SweepInterval,
	}
}

func (o Options) withDefaults() Options {
	def := defaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.IdleDelay <= 0 {
		o.IdleDelay = def.IdleDelay
	}
	if o.SendDelay <= 0 {
		o.SendDelay = def.SendDelay
	}
	if o.FailureDelay <= 0 {
		o.FailureDelay = def.FailureDelay
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = def.SendTimeout
	}
	if o.CountryPrefix == "" {
		o.CountryPrefix = def.CountryPrefix
	}
	if len(o.MessageTypes) == 0 {
		o.MessageTypes = def.MessageTypes
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = def.LeaseTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = def.SweepInterval
	}
	return o
}
