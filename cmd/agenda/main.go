package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Providers: se registran en init()
	_ "github.com/dropDatabas3/agenda/internal/providers/firebase"
	_ "github.com/dropDatabas3/agenda/internal/providers/local"
	_ "github.com/dropDatabas3/agenda/internal/providers/memory"
	_ "github.com/dropDatabas3/agenda/internal/providers/sqlite"
	_ "github.com/dropDatabas3/agenda/internal/providers/supabase"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("error loading .env: %v", err)
	}

	var configPath string
	root := &cobra.Command{
		Use:           "agenda",
		Short:         "Backend de la agenda de eventos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGENDA_CONFIG"), "archivo YAML de configuración (env AGENDA_CONFIG)")

	root.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		configCmd(&configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Muestra la versión",
			Run:   func(cmd *cobra.Command, args []string) { fmt.Println(version) },
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
