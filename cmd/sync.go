package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	domainSync "github.com/AzielCF/az-hub/domains/sync"
)

var (
	syncChatJID   string
	syncBatchSize int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass and exit",
	Long: `Drain pending history from the baileys bridge into the whatsmeow
bridge's canonical store, then exit. The exit code is 1 when the run
fails or finishes partially, so cron and CI can alert on it.`,
	Run: syncRun,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncChatJID, "chat-jid", "", "Reconcile a single chat instead of every pending chat")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0, "Messages per batch (max 1000, default from SYNC_BATCH_SIZE)")
}

func syncRun(_ *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl-C cancels the run; the batch in flight still commits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[SYNC] Reception of termination signal, cancelling run...")
		cancel()
	}()

	result, err := syncUsecase.Run(ctx, domainSync.RunRequest{
		ChatJID:   syncChatJID,
		BatchSize: syncBatchSize,
	})

	printSyncResult(result)
	StopApp()

	if err != nil {
		logrus.Errorf("[SYNC] Run failed: %v", err)
		os.Exit(1)
	}
	if result.Partial {
		logrus.Warnf("[SYNC] Run finished partially: %d chat(s) failed", result.ChatsFailed)
		os.Exit(1)
	}
}

func printSyncResult(result domainSync.Result) {
	elapsed := time.Duration(result.ElapsedMs) * time.Millisecond

	fmt.Println("Sync result:")
	fmt.Printf("  chats processed: %s (%s failed)\n",
		humanize.Comma(int64(result.ChatsProcessed)), humanize.Comma(int64(result.ChatsFailed)))
	fmt.Printf("  fetched:         %s\n", humanize.Comma(int64(result.MessagesFetched)))
	fmt.Printf("  inserted:        %s\n", humanize.Comma(int64(result.MessagesInserted)))
	fmt.Printf("  deduplicated:    %s\n", humanize.Comma(int64(result.MessagesDeduplicated)))
	fmt.Printf("  failed:          %s\n", humanize.Comma(int64(result.MessagesFailed)))
	fmt.Printf("  elapsed:         %s\n", elapsed)

	for _, chat := range result.Chats {
		if chat.Error != "" {
			fmt.Printf("  chat %s failed: %s\n", chat.ChatJID, chat.Error)
		}
	}
}
