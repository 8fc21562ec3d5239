package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/ystepanoff/tangle/tngl"
)

func readSource(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}

func compileCmd() *cobra.Command {
	var output string
	var asHex bool
	cmd := &cobra.Command{
		Use:   "compile <file.tngl|->",
		Short: "Compile a TNGL program to bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}
			program, err := tngl.NewCompiler(newLogger()).Compile(src)
			if err != nil {
				return err
			}
			if output != "" {
				return os.WriteFile(output, program, 0o644)
			}
			if asHex {
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(program))
				return nil
			}
			_, err = cmd.OutOrStdout().Write(program)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write bytecode to this file instead of stdout")
	cmd.Flags().BoolVar(&asHex, "hex", false, "Print bytecode as hex")
	return cmd
}

var kindColors = map[tngl.Kind]*color.Color{
	tngl.KindComment:     color.New(color.FgHiBlack),
	tngl.KindColor:       color.New(color.FgMagenta),
	tngl.KindString:      color.New(color.FgGreen),
	tngl.KindTimestamp:   color.New(color.FgCyan),
	tngl.KindLabel:       color.New(color.FgYellow),
	tngl.KindPercentage:  color.New(color.FgBlue),
	tngl.KindWord:        color.New(color.Bold),
	tngl.KindNumber:      color.New(color.FgRed),
	tngl.KindFloat:       color.New(color.FgRed),
	tngl.KindUnknown:     color.New(color.FgWhite, color.BgRed),
	tngl.KindPunctuation: color.New(color.Faint),
}

func tokensCmd() *cobra.Command {
	var showSpace bool
	cmd := &cobra.Command{
		Use:   "tokens <file.tngl|->",
		Short: "List the tokens of a TNGL program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, tok := range tngl.Tokenize(src, tngl.DefaultMatchers()) {
				if tok.Kind == tngl.KindWhitespace && !showSpace {
					continue
				}
				c, ok := kindColors[tok.Kind]
				if !ok {
					c = color.New(color.Reset)
				}
				fmt.Fprintf(out, "%4d:%-3d %-12s %s\n", tok.Line, tok.Column, tok.Kind, c.Sprintf("%q", tok.Lexeme))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSpace, "whitespace", false, "Include whitespace tokens")
	return cmd
}
