package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/core"
	"github.com/eventfold/eventfold/eventstore/bbolt"
	"github.com/eventfold/eventfold/eventstore/memory"
	storesql "github.com/eventfold/eventfold/eventstore/sql"
	"github.com/eventfold/eventfold/example/order"
	"github.com/eventfold/eventfold/internal/config"
	"github.com/eventfold/eventfold/pipeline"
)

type engine interface {
	core.EventStore
	core.SnapshotStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg.Logger)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, closeStore, err := openEngine(cfg.Store)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	register := eventfold.NewRegister()
	order.RegisterWith(register)

	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			return handle(ctx, m, store, register, cfg.DefaultBucket)
		},
		pipeline.Retry(pipeline.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			Delay:      cfg.Retry.Delay,
			Logger:     logger,
		}),
	)

	msg := pipeline.NewMessage("order-demo")
	if err := handler(context.Background(), msg); err != nil {
		logger.Fatal("unit of work failed", zap.Error(err))
	}
	logger.Info("order processed", zap.String("message_id", msg.ID))
}

// handle is one unit of work: create an order, pay it down, commit.
func handle(ctx context.Context, m *pipeline.Message, store engine, register *eventfold.Register, bucket string) error {
	repo := eventfold.NewRepository(store, register,
		eventfold.WithSnapshotStore(store),
		eventfold.WithDefaultBucket(bucket),
	)
	defer repo.Close()

	repo.Subscribers().All(func(e eventfold.Event) {
		fmt.Printf("committed %s/%s v%d %s\n", e.Bucket(), e.AggregateID(), e.Version(), e.Reason())
	})

	o, err := eventfold.New[*order.Order](repo, "", "")
	if err != nil {
		return err
	}
	if err := o.Create(100); err != nil {
		return err
	}
	if err := o.AddDiscount(10); err != nil {
		return err
	}
	if err := o.Pay(90); err != nil {
		return err
	}
	return repo.Commit(ctx, uuid.NewString(), map[string]interface{}{
		"messageId": m.ID,
	})
}

func openEngine(cfg config.StoreConfig) (engine, func(), error) {
	switch cfg.Engine {
	case "bbolt":
		es, err := bbolt.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return es, func() { es.Close() }, nil
	case "sql":
		es, err := storesql.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return es, func() { es.Close() }, nil
	default:
		es := memory.Create()
		return es, func() { es.Close() }, nil
	}
}

func newLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Encoding {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.NewCore(encoder, zapcore.AddSync(zapcore.Lock(os.Stdout)), level)
	return zap.New(sink, zap.AddCaller()), nil
}
