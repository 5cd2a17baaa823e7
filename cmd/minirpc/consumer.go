package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"mini-rpc-core/application"
	"mini-rpc-core/bootstrap"
	"mini-rpc-core/client"
)

var consumerCmd = &cobra.Command{
	Use:   "consumer <add|subtract|multiply|divide> <a> <b>",
	Short: "Call the Calculator capability once",
	Args:  cobra.ExactArgs(3),
	RunE:  runConsumer,
}

func runConsumer(cmd *cobra.Command, args []string) error {
	method := exportedName(args[0])
	a, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid operand %q: %w", args[1], err)
	}
	b, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid operand %q: %w", args[2], err)
	}

	path, _ := cmd.Flags().GetString("config")
	rt, err := application.Init(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer rt.Close()

	c, err := bootstrap.NewConsumer(rt)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := client.Call[int](cmd.Context(), c, "Calculator", method, a, b)
	if err != nil {
		return err
	}
	cmd.Printf("%s(%d, %d) = %d\n", method, a, b, res)
	return nil
}

func exportedName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
