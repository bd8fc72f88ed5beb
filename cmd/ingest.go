package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/xiaowei/pkg/processor"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Add local files to the knowledge base",
		Long: "Add local files to the knowledge base. Without a configured database " +
			"the documents only live as long as the command.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			bar := getProgressBar(len(args), "📄 Ingesting documents...")
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					color.Red("\n✗ %s: %v", path, err)
					failed++
					bar.Add(1)
					continue
				}

				result, err := a.Assistant.UploadDocument(cmd.Context(), userID, filepath.Base(path),
					base64.StdEncoding.EncodeToString(data), fileTypeFor(path))
				bar.Add(1)
				if err != nil {
					color.Red("\n✗ %s: %v", path, err)
					failed++
					continue
				}
				bar.Describe(color.BlueString("📄 Added %s (~%d tokens)", result.FileName, result.TokenCount))
			}
			bar.Finish()

			color.Green("\n✓ Ingested %d of %d files", len(args)-failed, len(args))
			if failed > 0 {
				return fmt.Errorf("%d files failed", failed)
			}
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <url>",
		Short: "Crawl a website and add its pages to the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var pages int32
			a.Scraper.OnProgress(func(string) { atomic.AddInt32(&pages, 1) })

			spinner := getSpinner("📄 Scraping " + args[0])
			done := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						spinner.Describe(color.CyanString("📄 Scraping %s (%d pages)", args[0], atomic.LoadInt32(&pages)))
					}
				}
			}()

			results, err := a.Assistant.ImportURL(cmd.Context(), userID, args[0])
			close(done)
			spinner.Finish()
			fmt.Print("\r")
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Printf("  %d  %s (~%d tokens)\n", r.DocumentID, r.FileName, r.TokenCount)
			}
			color.Green("✓ Imported %d pages", len(results))
			return nil
		},
	}
}

func fileTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return processor.FileTypeMarkdown
	case ".html", ".htm":
		return processor.FileTypeHTML
	case ".pdf":
		return processor.FileTypePDF
	case ".docx":
		return processor.FileTypeDOCX
	default:
		return processor.FileTypeText
	}
}
