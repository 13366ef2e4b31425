package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/knowbase/internal/models"
)

var (
	kbDescription string
	kbProfiles    []string
	kbPriority    int

	kbURL      string
	kbPrefix   string
	kbMaxPages int
	kbVideos   []string
	kbPDFs     []string
	kbPDFURLs  []string
	kbFolder   string
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
	Long: `Create, list, inspect and delete knowledge bases.

Examples:
  knowbase kb create docs --type markdown --folder ./docs
  knowbase kb create blog --type website --url https://blog.example.com --max-pages 50
  knowbase kb list
  knowbase kb delete a1b2c3d4`,
}

var kbCreateCmd = &cobra.Command{
	Use:   "create <name> --type <website|youtube|pdf|markdown>",
	Short: "Create a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBCreate,
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge bases",
	RunE:  runKBList,
}

var kbShowCmd = &cobra.Command{
	Use:   "show <kb-id>",
	Short: "Show one knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBShow,
}

var kbDeleteCmd = &cobra.Command{
	Use:   "delete <kb-id>",
	Short: "Delete a knowledge base and all its indexed content",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBDelete,
}

func init() {
	f := kbCreateCmd.Flags()
	f.String("type", "", "source type: website, youtube, pdf or markdown")
	f.StringVarP(&kbDescription, "description", "d", "", "description")
	f.StringSliceVar(&kbProfiles, "profiles", nil, "profiles this KB belongs to")
	f.IntVar(&kbPriority, "priority", 0, "retrieval priority")

	f.StringVar(&kbURL, "url", "", "website: start URL")
	f.StringVar(&kbPrefix, "prefix", "", "website: restrict crawl to URL prefix")
	f.IntVar(&kbMaxPages, "max-pages", 100, "website: page limit")
	f.StringSliceVar(&kbVideos, "video", nil, "youtube: video URL (repeatable)")
	f.StringSliceVar(&kbPDFs, "pdf", nil, "pdf: local file path (repeatable)")
	f.StringSliceVar(&kbPDFURLs, "pdf-url", nil, "pdf: remote URL (repeatable)")
	f.StringVar(&kbFolder, "folder", "", "pdf/markdown: folder path")
	_ = kbCreateCmd.MarkFlagRequired("type")

	kbCmd.AddCommand(kbCreateCmd)
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbShowCmd)
	kbCmd.AddCommand(kbDeleteCmd)
}

func runKBCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	sourceType, _ := cmd.Flags().GetString("type")
	srcCfg, err := buildSourceConfig(models.SourceType(sourceType))
	if err != nil {
		return err
	}

	kb, err := ctrl.CreateKB(ctx, models.KBInput{
		Name:         args[0],
		Description:  kbDescription,
		SourceConfig: srcCfg,
		Profiles:     kbProfiles,
		Priority:     kbPriority,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created knowledge base %s (%s)\n", kb.Name, kb.ID)
	fmt.Printf("Run 'knowbase ingest start %s' to index it.\n", kb.ID)
	return nil
}

func buildSourceConfig(t models.SourceType) (models.SourceConfig, error) {
	cfg := models.SourceConfig{Type: t}
	switch t {
	case models.SourceWebsite:
		cfg.Website = &models.WebsiteSource{StartURL: kbURL, URLPrefix: kbPrefix, MaxPages: kbMaxPages}
	case models.SourceYouTube:
		cfg.YouTube = &models.YouTubeSource{VideoURLs: kbVideos}
	case models.SourcePDF:
		cfg.PDF = &models.PDFSource{LocalPaths: kbPDFs, PDFURLs: kbPDFURLs, FolderPath: kbFolder}
	case models.SourceMarkdown:
		cfg.Markdown = &models.MarkdownSource{FolderPath: kbFolder}
	default:
		return cfg, fmt.Errorf("unknown source type %q (want website, youtube, pdf or markdown)", t)
	}
	return cfg, nil
}

func runKBList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	kbs, err := ctrl.ListKBs(ctx)
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		fmt.Println("No knowledge bases found")
		return nil
	}

	fmt.Printf("%-10s %-20s %-10s %-8s %s\n", "ID", "NAME", "TYPE", "INDEXED", "LAST INDEXED")
	fmt.Println("-----------------------------------------------------------------------")
	for _, kb := range kbs {
		indexed := "no"
		if kb.Indexed {
			indexed = "yes"
		}
		lastIndexed := "-"
		if kb.LastIndexedAt != nil {
			lastIndexed = kb.LastIndexedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-10s %-20s %-10s %-8s %s\n", kb.ID, kb.Name, kb.SourceType, indexed, lastIndexed)
	}
	return nil
}

func runKBShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	kb, err := ctrl.GetKB(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Knowledge base: %s\n", kb.Name)
	fmt.Printf("  ID:          %s\n", kb.ID)
	fmt.Printf("  Status:      %s\n", kb.Status)
	fmt.Printf("  Source type: %s\n", kb.SourceType)
	if kb.Description != "" {
		fmt.Printf("  Description: %s\n", kb.Description)
	}
	if len(kb.Profiles) > 0 {
		fmt.Printf("  Profiles:    %v\n", kb.Profiles)
	}
	fmt.Printf("  Indexed:     %v\n", kb.Indexed)
	fmt.Printf("  Created:     %s\n", kb.CreatedAt.Format(time.RFC3339))
	if kb.LastIndexedAt != nil {
		fmt.Printf("  Last indexed: %s\n", kb.LastIndexedAt.Format(time.RFC3339))
	}

	status, err := ctrl.GetStatus(ctx, kb.ID)
	if err == nil {
		fmt.Printf("\nIngestion: %s", status.Status)
		if status.Status == models.JobRunning || status.Status == models.JobPaused {
			fmt.Printf(" (%s, %d%%)", status.Phase, status.Progress)
		}
		fmt.Println()
	}
	return nil
}

func runKBDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	if err := ctrl.DeleteKB(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted knowledge base %s\n", args[0])
	return nil
}
