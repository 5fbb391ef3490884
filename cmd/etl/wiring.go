package main

import (
	"context"

	kafkaadapter "github.com/couchcryptid/weather-snapshot-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-snapshot-etl/internal/adapter/mysql"
	"github.com/couchcryptid/weather-snapshot-etl/internal/adapter/openweather"
	"github.com/couchcryptid/weather-snapshot-etl/internal/pipeline"
	"github.com/couchcryptid/weather-snapshot-etl/internal/sqlscript"
)

func newLoader(db *mysql.Provider) *pipeline.Loader {
	return pipeline.NewLoader(db, sqlscript.NewSource(cfg.QualityChecksPath), logger, metrics)
}

// newPipeline wires both stages and, when brokers are configured, the Kafka
// snapshot notifier. The returned cleanup closes the notifier.
func newPipeline() (*pipeline.Pipeline, func()) {
	db := mysql.NewProvider(cfg.DB, logger)
	client := openweather.NewClient(cfg.WeatherAPIKey, cfg.WeatherBaseURL, cfg.WeatherTimeout, cfg.WeatherBreakerThreshold, logger, metrics)

	extractor := pipeline.NewExtractor(pipeline.ExtractorConfig{
		APIKey:      cfg.WeatherAPIKey,
		Cities:      cfg.Cities,
		PacingDelay: cfg.PacingDelay,
	}, client, db, logger, metrics)

	if !cfg.NotificationsEnabled() {
		logger.Info("snapshot notifications disabled")
		return pipeline.New(extractor, newLoader(db), nil, logger, metrics), func() {}
	}

	writer := kafkaadapter.NewWriter(cfg, logger)
	logger.Info("snapshot notifications enabled", "topic", cfg.KafkaSnapshotTopic, "brokers", cfg.KafkaBrokers)
	cleanup := func() {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	return pipeline.New(extractor, newLoader(db), writer, logger, metrics), cleanup
}

// migrate applies the embedded schema with a dedicated connection.
func migrate(ctx context.Context) error {
	db := mysql.NewProvider(cfg.DB, logger)
	conn, err := db.Connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close(conn)
	return mysql.Migrate(ctx, conn, logger)
}
