package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/strikewatch/internal/monitor"
	"github.com/rewired-gh/strikewatch/internal/publish"
)

type viewSource interface {
	Latest(ctx context.Context) (monitor.View, error)
}

func latestCmd() *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the view most recently published to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Redis.URL == "" || cfg.Redis.Key == "" {
				return errors.New("redis.url and redis.key must be set")
			}
			pub, err := publish.NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Key, "", cfg.Redis.TTL)
			if err != nil {
				return err
			}
			defer pub.Close()
			return printLatest(cmd.Context(), cmd.OutOrStdout(), pub, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func printLatest(ctx context.Context, w io.Writer, src viewSource, flags *viewFlags) error {
	v, err := src.Latest(ctx)
	if errors.Is(err, publish.ErrNoView) {
		fmt.Fprintln(w, "No view published yet")
		return nil
	}
	if err != nil {
		return err
	}
	v, err = flags.apply(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Cycle %s at %s\n\n", v.CycleID, v.UpdatedAt.Format("2006-01-02 15:04:05"))
	printTable(w, v)
	return nil
}
