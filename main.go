package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cfcache/cfcache/internal/cache"
	"github.com/cfcache/cfcache/internal/config"
	"github.com/cfcache/cfcache/internal/logging"
	"github.com/cfcache/cfcache/internal/server"
	"github.com/cfcache/cfcache/internal/server/routes"
	"github.com/cfcache/cfcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	summary     bool
	serve       bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_enabled"] = cfg.CacheEnabled()
		fields["qualifiers"] = cfg.Cache.Qualifiers
		fields["tolerance"] = cfg.Cache.Tolerance.String()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → 缓存目录 → 索引恢复 → 摘要/巡检服务。
	cc, err := openCache(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	if err := cc.InitCache(); err != nil {
		fmt.Fprintf(stdErr, "恢复缓存索引失败: %v\n", err)
		return 1
	}

	summary := cc.Summary()
	fields := logging.BaseFields("startup", opts.configPath)
	fields["cache_enabled"] = summary.Enabled
	fields["cache_dir"] = summary.Dir
	fields["slots"] = len(summary.Rows)
	fields["planes"] = summary.PlaneCount
	fields["tolerance"] = cfg.Cache.Tolerance.String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("缓存加载完成")

	if opts.summary {
		printSummary(cc, cfg.Cache.Qualifiers)
	}

	if opts.serve {
		if err := startHTTPServer(cfg, cc, logger); err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
	}
	return 0
}

// openCache 根据配置构建缓存；未配置 CacheDir 时返回禁用实例。
func openCache(cfg *config.Config, logger *logrus.Logger) (*cache.Cache, error) {
	if !cfg.CacheEnabled() {
		logger.WithFields(logrus.Fields{
			"action": "open_cache",
		}).Warn("CacheDir 未配置，缓存以禁用模式运行")
		return cache.Disabled(logger), nil
	}

	codec, err := cache.NewBinaryPlaneCodec(cfg.Cache.CompressionLevel)
	if err != nil {
		return nil, err
	}
	return cache.New(cache.Options{
		Dir:        cfg.Cache.CacheDir,
		Prefix:     cfg.Cache.FilePrefix,
		Tolerance:  cfg.Cache.Tolerance.Radians(),
		Logger:     logger,
		PlaneCodec: codec,
	})
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("cfcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		summary    bool
		serve      bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CFCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&summary, "summary", false, "输出缓存索引摘要")
	fs.BoolVar(&serve, "serve", false, "启动只读巡检 HTTP 服务")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CFCACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		summary:     summary,
		serve:       serve,
	}, nil
}

func startHTTPServer(cfg *config.Config, cc *cache.Cache, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	shared, err := server.NewSharedCache(cc)
	if err != nil {
		return err
	}
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Cache:      shared,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, shared)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
