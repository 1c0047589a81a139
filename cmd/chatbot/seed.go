package main

import (
	"context"
	"fmt"
	"os"
	"time"

	redisstore "github.com/LugmanS/chatbot/internal/adapters/redis"
	"github.com/LugmanS/chatbot/internal/config"
	"github.com/LugmanS/chatbot/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Bots []seedBot `yaml:"bots"`
}

type seedBot struct {
	Name                  string     `yaml:"name"`
	AccountID             string     `yaml:"accountId"`
	WhatsappAccountID     string     `yaml:"whatsappAccountId"`
	SessionTTL            int        `yaml:"sessionTTL"`
	SessionTimeoutMessage string     `yaml:"sessionTimeoutMessage"`
	Publish               bool       `yaml:"publish"`
	Flows                 []seedFlow `yaml:"flows"`
}

type seedFlow struct {
	Name   string           `yaml:"name"`
	Intent string           `yaml:"intent"`
	Steps  []map[string]any `yaml:"steps"`
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load bot and flow definitions from a YAML file",
	Long:  `Reads bot and flow definitions from a YAML file, validates every step graph, and stores the records. Meant for local development and demos.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()
		if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
			cfg.RedisAddr = addr
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Cannot read seed file: %v\n", err)
			os.Exit(1)
		}
		var file seedFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			fmt.Printf("Cannot parse seed file: %v\n", err)
			os.Exit(1)
		}

		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		store := redisstore.New(client)

		ctx := context.Background()
		for _, sb := range file.Bots {
			now := time.Now().UTC()
			bot := &domain.Bot{
				ID:                    uuid.NewString(),
				AccountID:             sb.AccountID,
				Name:                  sb.Name,
				WhatsappAccountID:     sb.WhatsappAccountID,
				IsPublished:           sb.Publish,
				SessionTTL:            sb.SessionTTL,
				SessionTimeoutMessage: sb.SessionTimeoutMessage,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if err := store.SaveBot(ctx, bot); err != nil {
				fmt.Printf("Saving bot %q failed: %v\n", sb.Name, err)
				os.Exit(1)
			}
			for _, sf := range sb.Flows {
				steps, err := domain.DecodeSteps(sf.Steps)
				if err != nil {
					fmt.Printf("Flow %q of bot %q: %v\n", sf.Name, sb.Name, err)
					os.Exit(1)
				}
				flow := &domain.Flow{
					ID:        uuid.NewString(),
					BotID:     bot.ID,
					Name:      sf.Name,
					Intent:    sf.Intent,
					Steps:     steps,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if _, err := flow.Compile(); err != nil {
					fmt.Printf("Flow %q of bot %q: %v\n", sf.Name, sb.Name, err)
					os.Exit(1)
				}
				if err := store.SaveFlow(ctx, flow); err != nil {
					fmt.Printf("Saving flow %q failed: %v\n", sf.Name, err)
					os.Exit(1)
				}
				fmt.Printf("Seeded flow %q (intent %q) for bot %q\n", sf.Name, sf.Intent, sb.Name)
			}
			fmt.Printf("Seeded bot %q (%s)\n", sb.Name, bot.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
