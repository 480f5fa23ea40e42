package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/chocobarcode/internal/app/run"
	"github.com/John-Robertt/chocobarcode/internal/config"
	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/infra/logx"
	"github.com/John-Robertt/chocobarcode/internal/table"
)

// DefaultTemplateName 是 template 命令未给文件名时的输出文件。
const DefaultTemplateName = "format_barcode_kosong.xlsx"

func main() {
	// Ctrl-C：在两条记录之间停止，已处理的部分照常保存。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode 让子命令把退出码交还给 execute（cobra 只认 error）。
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// execute 返回进程退出码：0 成功；1 有失败记录或运行失败；2 参数错误。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ec exitCode
	if errors.As(err, &ec) {
		return int(ec)
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "chocobarcode",
		Short:         "校验/修复商品表中的 EAN-13 条码，并生成带条码图片的 xlsx",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr), newTemplateCmd(stdout, stderr))
	return root
}

type runFlags struct {
	out      string
	config   string
	dryRun   bool
	seed     int64
	logLevel string
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [input]",
		Short: "处理输入表（.xlsx/.csv/.html），输出带条码图片的 xlsx",
		Long: `处理输入表（.xlsx/.csv/.html），输出带条码图片的 xlsx。

未给 input 时读取配置文件（chocobarcode.yaml/json/toml）或环境变量 CHOCOBARCODE_INPUT。
stdout 非 TTY 时只输出一个 RunReport JSON；进度与日志走 stderr。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				OutDir:     f.out,
				ConfigFile: f.config,
				DryRun:     f.dryRun,
				DryRunSet:  cmd.Flags().Changed("dry-run"),
				Seed:       f.seed,
				SeedSet:    cmd.Flags().Changed("seed"),
				LogLevel:   f.logLevel,
			}
			if len(args) == 1 {
				cli.Input = args[0]
			}
			return runCmd(cmd.Context(), cli, stdout, stderr)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.out, "out", "", "输出目录（默认：输入表所在目录）")
	fl.StringVar(&f.config, "config", "", "配置文件路径（默认：自动发现 ./chocobarcode.{yaml,json,toml}）")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只做决策与渲染，不写入任何文件；支持 --dry-run=false 覆盖配置")
	fl.Int64Var(&f.seed, "seed", 0, "随机条码种子（0 表示按时间）")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	return cmd
}

func runCmd(ctx context.Context, cli config.CLIArgs, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return exitCode(1)
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cli, err))
		return exitCode(1)
	}

	log, err := logx.NewWithWriter(stderr, eff.LogLevel, isTTY(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败：%v\n", err)
		return exitCode(1)
	}
	defer func() { _ = log.Sync() }()

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, log, obs)

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, eff, rr)
	}
	if rr.Error == nil && rr.Summary.Failed == 0 && !rr.Cancelled {
		return nil
	}
	return exitCode(1)
}

func newTemplateCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "template [file]",
		Short: "导出空白输入模板（默认 " + DefaultTemplateName + "）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultTemplateName
			if len(args) == 1 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				fmt.Fprintf(stderr, "路径无效：%v\n", err)
				return exitCode(1)
			}

			if err := table.WriteTemplate(abs, table.DefaultColumns); err != nil {
				fmt.Fprintf(stderr, "写入模板失败：%v\n", err)
				return exitCode(1)
			}
			fmt.Fprintf(stdout, "模板已写入：%s\n", abs)
			return nil
		},
	}
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	s := rr.Summary
	summary := fmt.Sprintf("完成：total=%d kept=%d regenerated=%d failed=%d collisions=%d",
		s.Total, s.Kept, s.Regenerated, s.Failed, s.Collisions,
	)
	if rr.Cancelled {
		summary += "（已取消）"
	}

	if isTTY(stdout) {
		fmt.Fprintln(stdout, summary)
		if rr.Error != nil {
			fmt.Fprintf(stderr, "%s: %s\n", rr.Error.Code, rr.Error.Msg)
		}
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			fmt.Fprintf(stderr, "第 %d 行 %q %s: %s\n", it.Row, it.Name, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summary)
}

func reportForConfigError(cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		Input:      cli.Input,
		DryRun:     cli.DryRunSet && cli.DryRun,
		StartedAt:  now,
		FinishedAt: now,
		Error:      &domain.RunError{Code: code, Msg: err.Error()},
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, rr domain.RunReport) {
	if w == nil || rr.Output == "" {
		return
	}
	fmt.Fprintf(w, "out: %s\n", rr.Output)
	if eff.Report && rr.Error == nil {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutputDir, run.ReportFileName))
	}
}
