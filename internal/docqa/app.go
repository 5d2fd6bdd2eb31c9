package docqa

import (
	"context"
	"fmt"

	"github.com/kart-io/docqa/pkg/app"
)

const (
	appName        = "docqa"
	appDescription = `DocQA document question answering service

Users upload documents which are extracted, chunked, embedded and indexed
per owner. Chat requests retrieve the closest chunks the caller may see
(their own files plus public ones) and stream a grounded answer with
citations.`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Per-user document question answering service"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs the docqa service with the given options.
func Run(opts *Options) error {
	printBanner(opts)

	ctx := context.Background()
	srv, err := NewServer(ctx, opts)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func printBanner(opts *Options) {
	fmt.Printf("Starting %s...\n", appName)
	fmt.Printf("  Embedding: %s (%s, dim=%d)\n", opts.Embedding.Provider, opts.Embedding.Model, opts.Embedding.Dimensions)
	fmt.Printf("  Chat: %s (%s)\n", opts.Chat.Provider, opts.Chat.Model)
	fmt.Printf("  Queue: %s, workers=%d\n", opts.Ingest.Queue, opts.Ingest.Workers)
	if opts.Milvus.Enabled {
		fmt.Printf("  Vectors: milvus (%s)\n", opts.Milvus.Address)
	} else {
		fmt.Println("  Vectors: pgvector")
	}
}
