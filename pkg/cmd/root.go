package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/avranju/iotedge-k8s/pkg/controller"
	"github.com/avranju/iotedge-k8s/pkg/health"
	"github.com/avranju/iotedge-k8s/pkg/kubernetes"
	"github.com/avranju/iotedge-k8s/pkg/version"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"
)

var rootCmd = &cobra.Command{
	Use:   "edge-k8s-controller [command] [options]",
	Short: "Edge device Kubernetes reconciliation controller",
	Long: `
Edge device Kubernetes reconciliation controller

  # show this help
  edge-k8s-controller -h

  # show version information
  edge-k8s-controller version

  # run the controller for a device
  edge-k8s-controller run --hub-hostname myhub.azure-devices.net --device-id dev1

  # check cluster connectivity and CRD registration without starting watches
  edge-k8s-controller diagnose

  # TODO: add more examples`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reconciliation controller and block until terminated",
	RunE:  runController,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check cluster connectivity, CRD registration, and node metrics",
	RunE:  runDiagnose,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and quit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (YAML/JSON/TOML); hot-reloaded on change")
	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to a kubeconfig file; defaults to in-cluster config, then ~/.kube/config")
	rootCmd.PersistentFlags().String("namespace", "microsoft-azure-devices-edge", "Workload namespace for Deployments and Services")
	rootCmd.PersistentFlags().String("secret-namespace", "default", "Namespace for image-pull Secrets")
	rootCmd.PersistentFlags().String("hub-hostname", "", "IoT hub hostname this controller's device belongs to")
	rootCmd.PersistentFlags().String("device-id", "", "Device id this controller instance serves")
	rootCmd.PersistentFlags().IntP("log-level", "", 2, "Set the log level (0-9)")
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd, diagnoseCmd, versionCmd)

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	cfgFile := viper.GetString("config")
	if cfgFile == "" {
		return
	}

	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file %s: %v\n", cfgFile, err)
		return
	}

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Infof("config file changed: %s", e.Name)
		initLogging()
	})
}

// Execute runs the root command; a returned error terminates the process.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func controllerConfig() kubernetes.ControllerConfig {
	return kubernetes.ControllerConfig{
		HubHostname:     viper.GetString("hub-hostname"),
		DeviceID:        viper.GetString("device-id"),
		Namespace:       viper.GetString("namespace"),
		SecretNamespace: viper.GetString("secret-namespace"),
		KubeconfigPath:  viper.GetString("kubeconfig"),
	}
}

func runController(cmd *cobra.Command, args []string) error {
	initLogging()

	cfg := controllerConfig()
	if cfg.HubHostname == "" || cfg.DeviceID == "" {
		return fmt.Errorf("--hub-hostname and --device-id are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, err := controller.New(ctx, cfg, afero.NewOsFs(), strconv.Itoa(viper.GetInt("log-level")))
	if err != nil {
		return fmt.Errorf("initialize controller: %w", err)
	}

	mux := http.NewServeMux()
	health.AttachHealthEndpoints(mux, ctrl.HealthChecker())
	healthServer := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("health server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- ctrl.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Infof("received signal %v, shutting down", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		_ = healthServer.Shutdown(shutdownCtx)
		return ctrl.Close(shutdownCtx)

	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("controller stopped: %w", err)
		}
		return nil
	}
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	initLogging()

	cfg := controllerConfig()
	restCfg, err := kubernetes.ResolveConfig(afero.NewOsFs(), cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("resolve cluster credentials: %w", err)
	}

	k8sClient, err := kubernetes.NewKubernetes(restCfg)
	if err != nil {
		return fmt.Errorf("build kubernetes clients: %w", err)
	}
	defer k8sClient.Close()

	ctx := context.Background()
	if err := k8sClient.EnsureCRD(ctx); err != nil {
		return fmt.Errorf("ensure CRD: %w", err)
	}
	fmt.Println("EdgeDeployment CRD registered")

	metrics, err := k8sClient.GetNodeMetrics(ctx, "")
	if err != nil {
		fmt.Printf("node metrics unavailable: %v\n", err)
		return nil
	}
	for _, m := range metrics.Items {
		fmt.Printf("node %s: cpu=%s memory=%s\n", m.Name, m.Usage.Cpu().String(), m.Usage.Memory().String())
	}
	return nil
}

func initLogging() {
	logLevel := viper.GetInt("log-level")
	if logLevel < 0 {
		logLevel = 2
	}

	config := textlogger.NewConfig(
		textlogger.Output(os.Stderr),
		textlogger.Verbosity(logLevel),
	)
	logger := textlogger.NewLogger(config)
	klog.SetLoggerWithOptions(logger)

	flagSet := flag.NewFlagSet("edge-k8s-controller", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	if err := flagSet.Parse([]string{"--v", strconv.Itoa(logLevel)}); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %v\n", err)
	}

	log.SetLevel(logrusLevelFor(logLevel))
	klog.V(0).Infof("logging initialized with level %d", logLevel)
}

func logrusLevelFor(level int) log.Level {
	switch {
	case level <= 0:
		return log.ErrorLevel
	case level == 1:
		return log.WarnLevel
	case level == 2:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}
