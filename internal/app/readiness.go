package app

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// Readiness reports whether the process can serve traffic: both stores must
// answer a ping within the probe timeout.
type Readiness struct {
	DB    Pinger
	Redis Pinger
}

// Handler returns the /readyz handler. Any failing dependency yields 503
// with the failing check named in the body.
func (rd Readiness) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rd.check(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (rd Readiness) check(ctx context.Context) error {
	if rd.DB == nil {
		return fmt.Errorf("db not configured")
	}
	if err := rd.DB.Ping(ctx); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if rd.Redis == nil {
		return fmt.Errorf("redis not configured")
	}
	if err := rd.Redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
