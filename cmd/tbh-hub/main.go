package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EXG1O/telegram-bots-hub/internal/designer"
	"github.com/EXG1O/telegram-bots-hub/internal/httpapi"
	"github.com/EXG1O/telegram-bots-hub/internal/hub"
	"github.com/EXG1O/telegram-bots-hub/internal/lifecycle"
	"github.com/EXG1O/telegram-bots-hub/internal/metrics"
	"github.com/EXG1O/telegram-bots-hub/internal/profile"
	"github.com/EXG1O/telegram-bots-hub/internal/scratch"
	"github.com/EXG1O/telegram-bots-hub/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "tbh-hub",
	Short: `Runs many Telegram bots from one process, each driven by a flow graph fetched from a Designer Service.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:       viper.GetString("mode"),
			Addr:       viper.GetString("addr"),
			Port:       viper.GetInt("port"),
			UNIXSock:   viper.GetString("unix-sock"),
			SelfURL:    viper.GetString("self-url"),
			SelfToken:  viper.GetString("self-token"),
			ServiceURL: viper.GetString("service-url"),
			Version:    version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
		if instanceProfile.Debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		reg := metrics.New()
		scratchStore, closeScratch, err := newScratchStore(instanceProfile)
		if err != nil {
			slog.Error("failed to open scratch store", "error", err)
			os.Exit(1)
		}
		defer closeScratch()

		h := hub.New()
		newDesigner := func(serviceID int64) lifecycle.Designer {
			return designer.New(instanceProfile.ServiceURL, serviceID, instanceProfile.ServiceToken)
		}
		manager := lifecycle.New(h, scratchStore, instanceProfile.SelfURL, instanceProfile.WebhookSecret, instanceProfile.ServiceURL, newDesigner, reg)

		e := echo.New()
		e.HideBanner = true
		httpapi.New(h, manager, instanceProfile.SelfToken, instanceProfile.WebhookSecret, reg).Register(e)
		e.GET("/metrics", echo.WrapHandler(reg.Handler()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		listener, err := newListener(instanceProfile)
		if err != nil {
			slog.Error("failed to listen", "error", err)
			os.Exit(1)
		}
		e.Listener = listener

		go func() {
			if err := e.Start(""); err != nil {
				slog.Info("http server stopped", "error", err)
			}
		}()

		printGreetings(instanceProfile)

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		<-c

		slog.Info("shutting down")
		_ = e.Shutdown(ctx)
	},
}

func newScratchStore(p *profile.Profile) (*scratch.Store, func(), error) {
	if p.ScratchDSN == "" {
		return scratch.NewStore(scratch.NewMemBackend()), func() {}, nil
	}
	backend, err := scratch.OpenSQLBackend(p.ScratchDSN)
	if err != nil {
		return nil, nil, err
	}
	return scratch.NewStore(backend), func() { _ = backend.Close() }, nil
}

func newListener(p *profile.Profile) (net.Listener, error) {
	if p.UNIXSock != "" {
		return net.Listen("unix", p.UNIXSock)
	}
	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	return net.Listen("tcp", addr)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28082)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address to listen on")
	rootCmd.PersistentFlags().Int("port", 28082, "port to listen on")
	rootCmd.PersistentFlags().String("unix-sock", "", "path to a unix socket, overrides --addr/--port")
	rootCmd.PersistentFlags().String("self-url", "", "this process's externally-reachable base URL")
	rootCmd.PersistentFlags().String("self-token", "", "X-API-KEY value required on the control surface")
	rootCmd.PersistentFlags().String("service-url", "", "Designer Service base URL")

	for _, f := range []string{"mode", "addr", "port", "unix-sock", "self-url", "self-token", "service-url"} {
		if err := viper.BindPFlag(f, rootCmd.PersistentFlags().Lookup(f)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("tbh")
	viper.AutomaticEnv()
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("telegram-bots-hub %s started successfully!\n", p.Version)
	if p.UNIXSock != "" {
		fmt.Printf("Listening on unix socket: %s\n", p.UNIXSock)
	} else {
		fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
	}
	fmt.Printf("Designer Service: %s\n", p.ServiceURL)
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
