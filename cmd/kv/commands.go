package kv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	expiryFlag      time.Duration
	casFlag         uint64
	initialFlag     uint64
	lockForFlag     time.Duration
	persistToFlag   int
	replicateToFlag int

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the document for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			doc, found, err := rpcBucket.Get(key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			fmt.Printf("key=%s, found=true, cas=%d, expiry=%s, value=%s\n", key, doc.Cas, doc.Expiry, doc.Value)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key]",
		Short: "Checks if a document exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			found, err := rpcBucket.Exists(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", key, found)
			return nil
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [key] [value]",
		Short: "Creates a document, fails if the key already exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Insert(args[0], []byte(args[1]), expiryFlag)
			if err != nil {
				return err
			}
			fmt.Printf("inserted key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	upsertCmd = &cobra.Command{
		Use:   "upsert [key] [value]",
		Short: "Creates or overwrites a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Upsert(args[0], []byte(args[1]), expiryFlag)
			if err != nil {
				return err
			}
			fmt.Printf("upserted key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value]",
		Short: "Overwrites an existing document, optionally CAS-qualified",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Replace(args[0], []byte(args[1]), expiryFlag, casFlag)
			if err != nil {
				return err
			}
			fmt.Printf("replaced key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Deletes a document, optionally CAS-qualified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Remove(args[0], casFlag)
			if err != nil {
				return err
			}
			fmt.Printf("removed key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	counterCmd = &cobra.Command{
		Use:   "counter [key] [delta]",
		Short: "Adjusts a numeric document by delta (use --initial to create missing keys)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("delta must be a number: %w", err)
			}
			if cmd.Flags().Changed("initial") {
				res, err := rpcBucket.CounterWithInitial(args[0], delta, initialFlag, expiryFlag)
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, value=%d, cas=%d\n", res.Key, res.Value, res.Cas)
				return nil
			}
			res, err := rpcBucket.Counter(args[0], delta)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%d, cas=%d\n", res.Key, res.Value, res.Cas)
			return nil
		},
	}
	appendCmd = &cobra.Command{
		Use:   "append [key] [payload]",
		Short: "Appends the payload to a stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Append(args[0], []byte(args[1]), casFlag)
			if err != nil {
				return err
			}
			fmt.Printf("appended key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	prependCmd = &cobra.Command{
		Use:   "prepend [key] [payload]",
		Short: "Prepends the payload to a stored value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.Prepend(args[0], []byte(args[1]), casFlag)
			if err != nil {
				return err
			}
			fmt.Printf("prepended key=%s, cas=%d\n", doc.Key, doc.Cas)
			return nil
		},
	}
	touchCmd = &cobra.Command{
		Use:   "touch [key]",
		Short: "Resets the expiry of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := rpcBucket.Touch(args[0], expiryFlag)
			if err != nil {
				return err
			}
			fmt.Printf("touched=%t\n", ok)
			return nil
		},
	}
	getAndTouchCmd = &cobra.Command{
		Use:   "gat [key]",
		Short: "Reads a document and resets its expiry in one call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.GetAndTouch(args[0], expiryFlag)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, cas=%d, value=%s\n", doc.Key, doc.Cas, doc.Value)
			return nil
		},
	}
	lockCmd = &cobra.Command{
		Use:   "lock [key]",
		Short: "Locks a document and returns its value with the lock token",
		Long:  "Locks a document for the --lock-for duration. The returned CAS is the lock token: pass it to 'unlock' to release the lock, or to 'replace' to write and release in one step.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := rpcBucket.GetAndLock(args[0], lockForFlag)
			if err != nil {
				return fmt.Errorf("failed to acquire lock: %v", err)
			}
			fmt.Printf("locked key=%s, cas=%d, value=%s\n", doc.Key, doc.Cas, doc.Value)
			return nil
		},
	}
	unlockCmd = &cobra.Command{
		Use:   "unlock [key] [cas]",
		Short: "Releases a lock using the token returned by lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			ok, err := rpcBucket.Unlock(args[0], cas)
			if err != nil {
				return fmt.Errorf("failed to release lock: %v", err)
			}
			fmt.Printf("unlocked=%t\n", ok)
			return nil
		},
	}
	endureCmd = &cobra.Command{
		Use:   "endure [key] [cas]",
		Short: "Waits until a mutation reaches the requested durability",
		Long:  "Waits until the mutation identified by key and CAS is persisted to --persist-to nodes and replicated to --replicate-to replicas.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cas, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("cas must be a number: %w", err)
			}
			if err := rpcBucket.AwaitDurability(context.Background(), args[0], cas, persistToFlag, replicateToFlag); err != nil {
				return err
			}
			fmt.Println("durability reached")
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{insertCmd, upsertCmd, replaceCmd, counterCmd, touchCmd, getAndTouchCmd} {
		cmd.Flags().DurationVar(&expiryFlag, "expiry", 0, "Time until the document expires (0 for no expiry)")
	}
	for _, cmd := range []*cobra.Command{replaceCmd, removeCmd, appendCmd, prependCmd} {
		cmd.Flags().Uint64Var(&casFlag, "cas", 0, "CAS token the stored document must match (0 for unconditional)")
	}
	counterCmd.Flags().Uint64Var(&initialFlag, "initial", 0, "Initial value if the key does not exist")
	lockCmd.Flags().DurationVar(&lockForFlag, "lock-for", 15*time.Second, "How long to hold the lock")
	endureCmd.Flags().IntVar(&persistToFlag, "persist-to", 1, "Number of nodes the mutation must be persisted on")
	endureCmd.Flags().IntVar(&replicateToFlag, "replicate-to", 0, "Number of replicas the mutation must be replicated to")
}
