package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mando222/ai-image-gen/internal/cli"
	"github.com/mando222/ai-image-gen/internal/genapi"
	"github.com/spf13/cobra"
)

var lorasCmd = &cobra.Command{
	Use:   "loras",
	Short: "List the LoRA add-ons for each model type",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()
		ctrl, closeMetrics := cli.InitSession(cfg, cli.InitClient(ctx, cfg))
		defer closeMetrics()

		groups, err := ctrl.LoadLoras(ctx)
		if err != nil {
			cli.ExitOnError(err)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("MODEL", "ID", "NAME")
		for _, modelType := range []string{genapi.ModelFast, genapi.ModelSlow} {
			for _, l := range groups.For(modelType) {
				t.Row(modelType, l.ID, l.Name)
			}
		}
		fmt.Println(t.Render())
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List images the service already holds",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()
		ctrl, closeMetrics := cli.InitSession(cfg, cli.InitClient(ctx, cfg))
		defer closeMetrics()

		gallery, err := ctrl.LoadGallery(ctx)
		if err != nil {
			cli.ExitOnError(err)
		}
		for _, u := range gallery {
			fmt.Println(u)
		}
	},
}
