// Command evmjit is a debugging and inspection tool for the JIT engine:
// it decodes raw bytecode, shows the effect of the fusion pass, dumps
// Indexed Code's jump-target tables, and compiles and runs a program
// against an empty execution context, printing the resulting status and
// stack.
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/jit"
	"github.com/paradigmxyz/jitevm/pkg/log"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// applyLogFormat installs the --log-format Logger (text/json/color)
// as the package-level default so every component acquiring a module
// logger via log.Default().Module(...) renders the same way.
func applyLogFormat(c *cli.Context) error {
	switch c.String("log-format") {
	case "", "json":
		log.SetDefault(log.NewWithFormatter(&log.JSONFormatter{}, slog.LevelInfo, os.Stderr))
	case "text":
		log.SetDefault(log.NewWithFormatter(&log.TextFormatter{}, slog.LevelInfo, os.Stderr))
	case "color":
		log.SetDefault(log.NewWithFormatter(&log.ColorFormatter{}, slog.LevelInfo, os.Stderr))
	default:
		return cli.Exit(fmt.Sprintf("unknown --log-format %q (want text, json, or color)", c.String("log-format")), 1)
	}
	return nil
}

func readCode(c *cli.Context) (bytecode.Code, error) {
	args := c.Args()
	if args.Len() < 1 {
		return bytecode.Code{}, cli.Exit("missing bytecode argument (hex string or @file)", 1)
	}

	raw, err := loadBytes(args.First())
	if err != nil {
		return bytecode.Code{}, cli.Exit(err, 1)
	}

	mode := opcode.Strict
	if c.Bool("lax") {
		mode = opcode.Lax
	}
	code, err := bytecode.Decode(raw, mode)
	if err != nil {
		return bytecode.Code{}, cli.Exit(fmt.Sprintf("decode: %v", err), 1)
	}
	return code, nil
}

// loadBytes accepts either a hex string (with or without a 0x prefix) or
// an @-prefixed path to a file containing one.
func loadBytes(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		arg = string(data)
	}
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "0x")
	raw, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	return raw, nil
}

func disasmCmd(c *cli.Context) error {
	code, err := readCode(c)
	if err != nil {
		return err
	}
	fmt.Print(code.Disassemble())
	return nil
}

func augmentCmd(c *cli.Context) error {
	code, err := readCode(c)
	if err != nil {
		return err
	}
	augmented := bytecode.Augment(code)
	fmt.Println("before fusion:")
	fmt.Print(code.Disassemble())
	fmt.Println("\nafter fusion:")
	fmt.Print(augmented.Disassemble())
	return nil
}

func indexCmd(c *cli.Context) error {
	code, err := readCode(c)
	if err != nil {
		return err
	}
	ic := bytecode.Index(bytecode.Augment(code))
	fmt.Printf("%d ops, %d jumpdests\n", ic.Len(), len(ic.Jumpdests()))
	for _, opidx := range ic.Jumpdests() {
		fmt.Printf("  jumpdest opidx=%d offset=0x%04x\n", opidx, ic.OffsetOf(opidx))
	}
	return nil
}

func compileCmd(c *cli.Context) error {
	code, err := readCode(c)
	if err != nil {
		return err
	}
	ic := bytecode.Index(bytecode.Augment(code))

	opts := jit.CompileOptions{
		IRDumpPath:  c.String("ir-out"),
		AsmDumpPath: c.String("asm-out"),
	}
	cc, err := jit.Compile(ic, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("compile: %v", err), 1)
	}

	if c.Bool("no-run") {
		return nil
	}

	ctx := jit.NewExecutionContext(0, 0)
	if cd := c.String("calldata"); cd != "" {
		b, err := loadBytes(cd)
		if err != nil {
			return cli.Exit(err, 1)
		}
		ctx.SetCallData(b)
	}

	status := cc.Run(ctx)
	fmt.Printf("status: %d\n", status)
	fmt.Printf("stack (top first, %d words):\n", ctx.StackLen())
	for i := ctx.StackLen() - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, ctx.StackAt(i).Hex())
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "evmjit"
	app.Usage = "decode, fuse, index, and JIT-compile EVM bytecode"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "lax", Usage: "decode unknown opcodes as KindUnknown instead of failing"},
		&cli.StringFlag{Name: "log-format", Value: "json", Usage: "log rendering: json, text, or color"},
	}
	app.Before = applyLogFormat
	app.Commands = []*cli.Command{
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "disassemble raw bytecode",
			ArgsUsage: "hex|@file",
			Action:    disasmCmd,
		},
		{
			Name:      "augment",
			Aliases:   []string{"a"},
			Usage:     "show the effect of the PUSH+JUMP/JUMPI fusion pass",
			ArgsUsage: "hex|@file",
			Action:    augmentCmd,
		},
		{
			Name:      "index",
			Aliases:   []string{"i"},
			Usage:     "dump Indexed Code's jump-target table",
			ArgsUsage: "hex|@file",
			Action:    indexCmd,
		},
		{
			Name:      "compile",
			Aliases:   []string{"c"},
			Usage:     "compile (and, unless --no-run, execute) a program",
			ArgsUsage: "hex|@file",
			Action:    compileCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "ir-out", Usage: "write the LLVM-style IR dump to this path"},
				&cli.StringFlag{Name: "asm-out", Usage: "write the pseudo-assembly dump to this path"},
				&cli.StringFlag{Name: "calldata", Usage: "hex|@file calldata to seed the execution context with"},
				&cli.BoolFlag{Name: "no-run", Usage: "compile only, don't execute"},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
