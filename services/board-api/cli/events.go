package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-task-board/internal/kafka"
	"github.com/ramiqadoumi/go-task-board/services/board-api/config"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect board events mirrored to Kafka",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print board events as they are published",
	Long: `Follow the events topic from its latest offset and print one line per event.

Requires kafka_brokers; the serve command must also have the Kafka sink enabled.`,
	RunE: runEventsTail,
}

func init() {
	eventsTailCmd.Flags().String("group", "", "consumer group id; empty tails without committing offsets")
	eventsCmd.AddCommand(eventsTailCmd)
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("kafka_brokers is not configured")
	}
	group, _ := cmd.Flags().GetString("group")
	logger := buildLogger(cfg.LogLevel, serviceName)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, group, logger)
	defer func() { _ = consumer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return consumer.Subscribe(ctx, func(_ context.Context, msg kafka.Message) error {
		_, err := fmt.Fprintf(out, "%s %-13s %-36s %s\n",
			msg.Time.Format("15:04:05.000"), msg.Event, msg.Key, msg.Value)
		return err
	})
}
