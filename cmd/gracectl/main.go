// Command gracectl is the administrative command-line tool for the grace
// protocol engine, matching the `tool [-l] nodeid…` surface from
// spec.md §6 exactly:
//
//   - no flags, no nodeids: ensure the grace object exists, then dump.
//   - no -l, one or more nodeids: start for those nodeids, then dump.
//   - -l, one or more nodeids: lift for those nodeids, then dump.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nfscluster/gracekeeper/internal/logger"
	"github.com/nfscluster/gracekeeper/pkg/graceengine"
	"github.com/nfscluster/gracekeeper/pkg/objectstore/s3"
)

var (
	bucket    string
	region    string
	endpoint  string
	keyPrefix string
	object    string
	lift      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gracectl [-l] nodeid...",
		Short: "Inspect and administer the grace object",
		Long: `gracectl is the administrative command-line tool for the grace protocol
engine.

With no nodeids, it ensures the grace object exists and prints its current
state. With one or more nodeids, it starts (or, with -l, lifts) a grace
period for those nodes before printing the resulting state.

Examples:
  # Ensure the object exists, dump state
  gracectl --bucket my-bucket

  # Start a grace period for nodes 1 and 2
  gracectl --bucket my-bucket 1 2

  # Force-lift a grace period for node 1
  gracectl --bucket my-bucket -l 1`,
		Args: cobra.ArbitraryArgs,
		RunE: runGracectl,
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket holding the grace object (required)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3-compatible endpoint override")
	cmd.Flags().StringVar(&keyPrefix, "key-prefix", "", "Key prefix for all objects")
	cmd.Flags().StringVar(&object, "object", "grace", "Grace object name")
	cmd.Flags().BoolVarP(&lift, "lift", "l", false, "Lift grace for the given nodeids instead of starting it")
	_ = cmd.MarkFlagRequired("bucket")

	return cmd
}

func runGracectl(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logger.Config{Level: "WARN", Format: "text", Output: "stderr"}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	for _, a := range args {
		if err := validateNodeid(a); err != nil {
			return err
		}
	}

	ctx := context.Background()
	client, err := s3.NewFromConfig(ctx, s3.DialConfig{
		Bucket:    bucket,
		Region:    region,
		Endpoint:  endpoint,
		KeyPrefix: keyPrefix,
	})
	if err != nil {
		return fmt.Errorf("connecting to object store: %w", err)
	}

	engine := graceengine.New(client, nil, nil, graceengine.Config{ObjectName: object})

	if err := engine.Create(ctx); err != nil {
		var ee *graceengine.EngineError
		if !errors.As(err, &ee) || ee.Code != graceengine.CodeAlreadyExists {
			return fmt.Errorf("creating grace object: %w", err)
		}
	}

	switch {
	case len(args) == 0:
		// Nothing further to do: object is ensured to exist.
	case lift:
		if err := engine.Lift(ctx, args); err != nil {
			return fmt.Errorf("lifting grace for %v: %w", args, err)
		}
	default:
		if err := engine.Start(ctx, args); err != nil {
			return fmt.Errorf("starting grace for %v: %w", args, err)
		}
	}

	state, err := engine.Dump(ctx)
	if err != nil {
		return fmt.Errorf("dumping grace object: %w", err)
	}

	printDump(state)
	return nil
}

// validateNodeid rejects anything that isn't a decimal integer strictly
// less than math.MaxUint32, per spec.md §6.
func validateNodeid(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return graceengine.NewInvalidNodeIDError(s, "must be a decimal integer")
	}
	if n >= math.MaxUint32 {
		return graceengine.NewInvalidNodeIDError(s, fmt.Sprintf("must be less than %d", uint32(math.MaxUint32)))
	}
	return nil
}

func printDump(state graceengine.GraceObjectState) {
	fmt.Printf("C=%d R=%d\n", state.C, state.R)

	ids := make([]string, 0, len(state.Nodes))
	for id := range state.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		flags := state.Nodes[id]
		fmt.Printf("  %s: M=%t E=%t N=%t\n", id, flags.Member, flags.Enforcing, flags.Needs)
	}
}
