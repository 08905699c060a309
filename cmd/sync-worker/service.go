package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/mpsync/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping pinger
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []dependency
	Consumer     consumer
	// MetricsAddr serves /metrics while the consumer runs. Empty disables it.
	MetricsAddr    string
	MetricsHandler http.Handler
}

type Service struct {
	logg           *logger.Logger
	deps           []dependency
	consumer       consumer
	metricsAddr    string
	metricsHandler http.Handler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("sync consumer is required")
	}
	if params.MetricsAddr != "" && params.MetricsHandler == nil {
		return nil, errors.New("metrics handler is required")
	}
	return &Service{
		logg:           params.Logger,
		deps:           params.Dependencies,
		consumer:       params.Consumer,
		metricsAddr:    params.MetricsAddr,
		metricsHandler: params.MetricsHandler,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.deps {
		if err := dep.ping.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.consumer.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		}
		return err
	})
	if s.metricsAddr != "" {
		server := &http.Server{Addr: s.metricsAddr, Handler: s.metricsHandler, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
