// Package main is the CLI entry point for the screen-time coordinator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/coordinator/internal/bridge"
	"github.com/eliteGoblin/focusd/coordinator/internal/config"
	"github.com/eliteGoblin/focusd/coordinator/internal/domain"
	"github.com/eliteGoblin/focusd/coordinator/internal/evaluator"
	"github.com/eliteGoblin/focusd/coordinator/internal/infra"
	"github.com/eliteGoblin/focusd/coordinator/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Screen-time economy and app-blocking coordinator",
	Long: `coordinator decides which apps and websites are blocked at any instant,
runs timed focus sessions that trade verified effort for unlocked minutes,
and maintains an earned-time wallet reconciled against OS-measured usage.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the schedule evaluator loop",
	Long: `Runs the recurring evaluation loop in the foreground: schedule windows
are diffed against wall-clock time, daily limits are reset once per day,
and the blocked set is pushed to the native enforcement layer.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet balance, active session, and the blocked set",
	RunE:  runStatus,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single evaluation pass immediately",
	RunE:  runTick,
}

var blockCmd = &cobra.Command{
	Use:   "block <target>",
	Short: "Manually block an app or website",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlock,
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <target>",
	Short: "Remove a manual block",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnblock,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage blocking schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a blocking schedule",
	RunE:  runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blocking schedules",
	RunE:  runScheduleList,
}

var limitCmd = &cobra.Command{
	Use:   "limit <target> <minutes>",
	Short: "Set a daily usage limit for a target",
	Args:  cobra.ExactArgs(2),
	RunE:  runLimit,
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect and mutate the earned-time wallet",
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show available minutes and today's earnings",
	RunE:  runWalletBalance,
}

var walletEarnCmd = &cobra.Command{
	Use:   "earn <source> <minutes>",
	Short: "Credit earned minutes",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runWalletEarn,
}

var walletSpendCmd = &cobra.Command{
	Use:   "spend <target> <minutes>",
	Short: "Spend minutes on a target",
	Args:  cobra.ExactArgs(2),
	RunE:  runWalletSpend,
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the focus lock-in session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a lock-in session",
	RunE:  runSessionStart,
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete the active session",
	RunE:  runSessionComplete,
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active session (resets the streak)",
	RunE:  runSessionCancel,
}

var interceptCmd = &cobra.Command{
	Use:   "intercept <target> <minutes> <spend|urgent|earn>",
	Short: "Handle a blocked-target launch report",
	Long: `Runs the interception sequence for a blocked target the user just tried
to open: measured usage is reconciled into the wallet, then the decision is
applied - spend grants up to the available balance, urgent grants the full
window even into a negative balance, earn navigates home without unlocking.`,
	Args: cobra.ExactArgs(3),
	RunE: runIntercept,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	blockName     string
	schedName     string
	schedTargets  []string
	schedStart    string
	schedEnd      string
	schedDays     []int
	jsonOutput    bool
	urgentSpend   bool
	limitDisplays string

	sessType     string
	sessDuration int
	sessTargets  []string
	sessTask     bool
	sessPhoto    string
	sessEarned   int

	interceptName    string
	interceptWebsite bool
)

func init() {
	blockCmd.Flags().StringVar(&blockName, "name", "", "Display name for the target")
	scheduleAddCmd.Flags().StringVar(&schedName, "name", "", "Schedule name")
	scheduleAddCmd.Flags().StringSliceVar(&schedTargets, "targets", nil, "Target IDs to block")
	scheduleAddCmd.Flags().StringVar(&schedStart, "start", "09:00", "Window start (HH:MM)")
	scheduleAddCmd.Flags().StringVar(&schedEnd, "end", "17:00", "Window end (HH:MM)")
	scheduleAddCmd.Flags().IntSliceVar(&schedDays, "days", []int{1, 2, 3, 4, 5}, "Days of week (0=Sun..6=Sat)")
	limitCmd.Flags().StringVar(&limitDisplays, "name", "", "Display name for the target")
	walletSpendCmd.Flags().BoolVar(&urgentSpend, "urgent", false, "Urgent access: allow negative balance")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	sessionStartCmd.Flags().StringVar(&sessType, "type", "quick", "Session type (quick|verified|custom|exercise)")
	sessionStartCmd.Flags().IntVar(&sessDuration, "duration", 25, "Duration in minutes")
	sessionStartCmd.Flags().StringSliceVar(&sessTargets, "targets", nil, "Targets to block for the session")
	sessionStartCmd.Flags().BoolVar(&sessTask, "task", false, "Require photo-verified task completion")
	sessionStartCmd.Flags().StringVar(&sessPhoto, "photo", "", "Before-photo reference for the verification task")
	sessionCompleteCmd.Flags().StringVar(&sessPhoto, "photo", "", "After-photo reference")
	sessionCompleteCmd.Flags().IntVar(&sessEarned, "earned", 0, "Minutes to credit for a verified session")
	interceptCmd.Flags().StringVar(&interceptName, "name", "", "Display name for the target")
	interceptCmd.Flags().BoolVar(&interceptWebsite, "website", false, "Target is a website domain, not an app package")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	walletCmd.AddCommand(walletBalanceCmd)
	walletCmd.AddCommand(walletEarnCmd)
	walletCmd.AddCommand(walletSpendCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionCompleteCmd)
	sessionCmd.AddCommand(sessionCancelCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(interceptCmd)
	rootCmd.AddCommand(versionCmd)
}

// components wires the coordinator stack from configuration.
type components struct {
	cfg      *config.Config
	store    domain.Store
	clock    domain.Clock
	bridge   domain.NativeBridge
	usage    domain.UsageStatsProvider
	wallet   *usecase.Wallet
	syncer   *usecase.Syncer
	sessions *usecase.SessionManager
	logger   *zap.Logger
}

func buildComponents(logger *zap.Logger) (*components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	keyProvider := infra.NewFileKeyProvider(cfg.DataDir)
	key, err := infra.EnsureKey(keyProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain store key: %w", err)
	}

	store, err := infra.NewEncryptedStore(cfg.DataDir, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	clock := infra.NewSystemClock()

	var (
		nb    domain.NativeBridge
		usage domain.UsageStatsProvider
	)
	switch cfg.Platform {
	case "android":
		// Transport is bound by the embedding app; headless CLI runs get
		// the conservative nil-transport behavior.
		nb = bridge.NewAndroid(nil, logger)
		pm := infra.NewProcessManager()
		usage = bridge.NewDesktopUsage(pm, clock)
	case "ios":
		nb = bridge.NewIOS(nil, clock, logger)
		pm := infra.NewProcessManager()
		usage = bridge.NewDesktopUsage(pm, clock)
	default:
		pm := infra.NewProcessManager()
		nb = bridge.NewDesktop(pm, clock, logger)
		usage = bridge.NewDesktopUsage(pm, clock)
	}

	wallet := usecase.NewWallet(store, clock, logger)
	syncer := usecase.NewSyncer(store, nb, logger)
	sessions := usecase.NewSessionManager(store, wallet, syncer, clock, logger)

	return &components{
		cfg:      cfg,
		store:    store,
		clock:    clock,
		bridge:   nb,
		usage:    usage,
		wallet:   wallet,
		syncer:   syncer,
		sessions: sessions,
		logger:   logger,
	}, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := createDaemonLogger()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	ev := evaluator.New(evaluator.Config{Interval: c.cfg.EvaluatorInterval},
		c.store, c.syncer, c.sessions, c.clock, logger)

	fmt.Printf("coordinator running (interval %s, platform %s)\n",
		c.cfg.EvaluatorInterval, c.cfg.Platform)

	if err := ev.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runTick(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	ev := evaluator.New(evaluator.DefaultConfig(), c.store, c.syncer, c.sessions, c.clock, logger)
	ev.Tick(context.Background())

	fmt.Println("evaluation pass complete")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(zap.NewNop())
	if err != nil {
		return err
	}
	defer c.store.Close()

	fmt.Println("\n=== Coordinator Status ===")
	fmt.Printf("Wallet balance: %d min (earned today: %d min)\n",
		c.wallet.Balance(), c.wallet.TodayEarned())
	fmt.Printf("Streak: %d day(s)\n", c.sessions.Streak())

	sess, err := c.sessions.Active()
	if err == nil && sess != nil && sess.Active {
		fmt.Printf("Active session: %s (%s, %d min, started %s)\n",
			sess.ID, sess.Type, sess.DurationMinutes,
			sess.StartTime.Format(time.Kitchen))
	} else {
		fmt.Println("Active session: none")
	}

	apps, err := c.store.BlockedApps()
	if err != nil {
		return err
	}
	fmt.Println("\nBlocked targets:")
	if len(apps) == 0 {
		fmt.Println("  (none)")
	}
	for _, a := range apps {
		fmt.Printf("  - %s [%s]\n", a.TargetID, a.Type)
	}
	fmt.Println("==========================")
	return nil
}

func runBlock(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	target := args[0]
	name := blockName
	if name == "" {
		name = target
	}
	if err := c.store.SaveBlockedApp(domain.BlockedApp{
		TargetID:    target,
		DisplayName: name,
		Type:        domain.BlockManual,
	}); err != nil {
		return err
	}
	if err := c.syncer.Push(context.Background()); err != nil {
		return err
	}
	fmt.Printf("blocked %s\n", target)
	return nil
}

func runUnblock(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if err := c.store.RemoveBlockedApp(args[0], domain.BlockManual); err != nil {
		return err
	}
	if err := c.syncer.Push(context.Background()); err != nil {
		return err
	}
	fmt.Printf("unblocked %s\n", args[0])
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(zap.NewNop())
	if err != nil {
		return err
	}
	defer c.store.Close()

	if len(schedTargets) == 0 {
		return fmt.Errorf("--targets is required")
	}

	s := domain.BlockSchedule{
		ID:         uuid.NewString(),
		Name:       schedName,
		TargetIDs:  schedTargets,
		StartTime:  schedStart,
		EndTime:    schedEnd,
		DaysOfWeek: schedDays,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	if err := c.store.SaveSchedule(s); err != nil {
		return err
	}
	fmt.Printf("schedule %s added (%s-%s, targets: %s)\n",
		s.ID, s.StartTime, s.EndTime, strings.Join(s.TargetIDs, ", "))
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(zap.NewNop())
	if err != nil {
		return err
	}
	defer c.store.Close()

	schedules, err := c.store.Schedules()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Blocking Schedules ===")
	for _, s := range schedules {
		state := "inactive"
		if s.Active {
			state = "active"
		}
		fmt.Printf("\n[%s] %s (%s)\n", s.ID, s.Name, state)
		fmt.Printf("  Window: %s-%s days %v\n", s.StartTime, s.EndTime, s.DaysOfWeek)
		fmt.Printf("  Targets: %s\n", strings.Join(s.TargetIDs, ", "))
	}
	fmt.Println("\n==========================")
	return nil
}

func runLimit(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(zap.NewNop())
	if err != nil {
		return err
	}
	defer c.store.Close()

	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("minutes must be a positive integer")
	}

	name := limitDisplays
	if name == "" {
		name = args[0]
	}
	l := domain.DailyLimit{
		TargetID:      args[0],
		DisplayName:   name,
		LimitMinutes:  minutes,
		LastResetDate: time.Now().Format("2006-01-02"),
	}
	if err := c.store.SaveDailyLimit(l); err != nil {
		return err
	}
	fmt.Printf("daily limit for %s set to %d min\n", args[0], minutes)
	return nil
}

func runWalletBalance(cmd *cobra.Command, args []string) error {
	c, err := buildComponents(zap.NewNop())
	if err != nil {
		return err
	}
	defer c.store.Close()

	fmt.Printf("balance: %d min\n", c.wallet.Balance())
	fmt.Printf("earned today: %d min\n", c.wallet.TodayEarned())
	return nil
}

func runWalletEarn(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("minutes must be a positive integer")
	}
	note := ""
	if len(args) == 3 {
		note = args[2]
	}

	c.wallet.Earn(args[0], minutes, note)
	fmt.Printf("earned %d min (balance: %d min)\n", minutes, c.wallet.Balance())
	return nil
}

func runWalletSpend(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("minutes must be a positive integer")
	}

	if urgentSpend {
		c.wallet.UrgentSpend(args[0], args[0], minutes)
		fmt.Printf("urgent spend of %d min (balance: %d min)\n", minutes, c.wallet.Balance())
		return nil
	}

	if !c.wallet.Spend(args[0], args[0], minutes) {
		fmt.Printf("insufficient balance (%d min available)\n", c.wallet.Balance())
		return nil
	}
	fmt.Printf("spent %d min (balance: %d min)\n", minutes, c.wallet.Balance())
	return nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if len(sessTargets) == 0 {
		return fmt.Errorf("--targets is required")
	}
	if sessDuration <= 0 {
		return fmt.Errorf("--duration must be a positive integer")
	}

	started, err := c.sessions.Start(context.Background(), usecase.SessionDescriptor{
		Type:            domain.SessionType(sessType),
		DurationMinutes: sessDuration,
		BlockedApps:     sessTargets,
		RequiresTask:    sessTask,
		BeforePhotoRef:  sessPhoto,
	})
	if err != nil {
		return err
	}
	if !started {
		fmt.Println("a session is already active")
		return nil
	}
	fmt.Printf("session started (%s, %d min, %d target(s) blocked)\n",
		sessType, sessDuration, len(sessTargets))
	return nil
}

func runSessionComplete(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	result, err := c.sessions.Complete(context.Background(), sessPhoto, sessEarned)
	if err != nil {
		return err
	}
	if result.VerificationFailed {
		fmt.Println("verification failed, session stays active")
		return nil
	}
	fmt.Printf("session completed: %d points", result.PointsEarned)
	if result.FirstOfDay {
		fmt.Printf(", streak %d day(s)", c.sessions.Streak())
	}
	fmt.Printf(" (balance: %d min)\n", c.wallet.Balance())
	return nil
}

func runSessionCancel(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	if err := c.sessions.Cancel(context.Background()); err != nil {
		return err
	}
	fmt.Println("session cancelled, streak reset")
	return nil
}

func runIntercept(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(logger)
	if err != nil {
		return err
	}
	defer c.store.Close()

	minutes, err := strconv.Atoi(args[1])
	if err != nil || minutes <= 0 {
		return fmt.Errorf("minutes must be a positive integer")
	}
	decision := usecase.Decision(args[2])
	switch decision {
	case usecase.DecisionSpend, usecase.DecisionUrgent, usecase.DecisionEarn:
	default:
		return fmt.Errorf("decision must be spend, urgent, or earn")
	}

	kind := usecase.TargetApp
	if interceptWebsite {
		kind = usecase.TargetWebsite
	}
	name := interceptName
	if name == "" {
		name = args[0]
	}

	interceptor := usecase.NewInterceptor(c.wallet, c.bridge, c.usage, logger)
	result, err := interceptor.HandleLaunch(context.Background(), args[0], name, kind, minutes, decision)
	if err != nil {
		return err
	}

	if decision == usecase.DecisionEarn {
		fmt.Printf("no access granted, balance %d min\n", result.Balance)
		return nil
	}
	if result.GrantedMinutes == 0 {
		fmt.Printf("access denied: insufficient balance (%d min available)\n", result.Balance)
		return nil
	}
	fmt.Printf("granted %d min on %s (balance: %d min)\n",
		result.GrantedMinutes, args[0], result.Balance)
	return nil
}

// createDaemonLogger builds a production logger writing to the configured
// log file, falling back to stdout if file logging fails.
func createDaemonLogger() *zap.Logger {
	cfg, err := config.Load()
	logPath := "/var/tmp/coordinator.log"
	if err == nil && cfg.LogPath != "" {
		logPath = cfg.LogPath
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{logPath}
	zcfg.ErrorOutputPaths = []string{logPath}
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		info := map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		}
		out, _ := json.Marshal(info)
		fmt.Println(string(out))
		return
	}
	fmt.Printf("coordinator %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}
