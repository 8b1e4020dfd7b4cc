// Точка входа KR Stream — Telegram-бот загрузки медиафайлов и веб-каталог
// с потоковой отдачей.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/krstream/internal/config"
)

// rootCmd — корневая команда.
var rootCmd = &cobra.Command{
	Use:   "krstream",
	Short: "KR Stream — медиакаталог с загрузкой через Telegram",
	Long: `KR Stream принимает видеофайлы от оператора через Telegram-бота,
хранит их на диске и отдаёт зрителям через веб-каталог с поддержкой Range.

Конфигурация задаётся переменными окружения KR_*.`,
	SilenceUsage: true,
}

// versionCmd печатает версию сборки.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Версия KR Stream",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, catalogCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
