package main

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List Bedrock foundation models available in the configured region",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var loadOpts []func(*awsconfig.LoadOptions) error
			if cfg.Backend.Region != "" {
				loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Backend.Region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
			if err != nil {
				return fmt.Errorf("loading aws config: %w", err)
			}

			client := bedrock.NewFromConfig(awsCfg)
			out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
			if err != nil {
				return fmt.Errorf("listing models: %w", err)
			}
			for _, m := range out.ModelSummaries {
				fmt.Printf("%-60s %s\n", aws.ToString(m.ModelId), aws.ToString(m.ModelName))
			}
			return nil
		},
	}
}
