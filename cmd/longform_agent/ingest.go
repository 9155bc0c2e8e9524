package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/longform-writer/internal/db"
	"github.com/jonathan/longform-writer/internal/ingestion"
	"github.com/jonathan/longform-writer/internal/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add a knowledge document from a URL or file",
	Long: `Add a tagged document to the knowledge store. Author-voice and editor exemplars are
looked up by tag when personas are built, so tag them with the configured
pipeline.author_voice_tags / pipeline.editor_tags values.

HTML (from --url, or a .html file) is converted to Markdown; other files are stored as-is.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var (
	ingestTags    []string
	ingestURL     string
	ingestFile    string
	ingestTitle   string
	ingestDocType string
)

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestTags, "tag", nil, "Tag for the document (repeatable, required)")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "Fetch the document from this URL")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "Read the document from this file")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Document title (default: page title or file name)")
	ingestCmd.Flags().StringVar(&ingestDocType, "type", types.DocTypeReference, "Document type (reference, exemplar, competitor, generated)")
	_ = ingestCmd.MarkFlagRequired("tag")
	ingestCmd.MarkFlagsMutuallyExclusive("url", "file")
	ingestCmd.MarkFlagsOneRequired("url", "file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var req types.CreateDocumentRequest
	var err error
	if ingestURL != "" {
		req, err = ingestion.FromURL(ctx, newFetcher(cfg.Fetch), ingestURL)
	} else {
		req, err = ingestion.FromFile(ingestFile)
	}
	if err != nil {
		return err
	}
	if ingestTitle != "" {
		req.Title = ingestTitle
	}
	req.DocType = ingestDocType
	req.Tags = ingestTags
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	return withStore(ctx, func(ctx context.Context, store db.Store) error {
		doc, err := store.CreateDocument(ctx, req)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Stored document %d %q (%d chars, tags: %s)",
			doc.ID, doc.Title, len([]rune(doc.Content)), strings.Join(doc.Tags, ", "))
		return nil
	})
}
