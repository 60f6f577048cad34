package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	taskchampion "github.com/timcase/taskchampion-go"
)

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a new pending task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		rep, err := openReplica()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening task database: %v\n", err)
			os.Exit(1)
		}
		defer rep.Close()

		ops := taskchampion.NewOperations()
		id := uuid.New()
		task, err := rep.CreateTask(id, ops)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating task: %v\n", err)
			os.Exit(1)
		}
		err = task.SetDescription(args[0], ops)
		if err == nil {
			err = task.SetStatus(taskchampion.StatusPending, ops)
		}
		if err == nil {
			if priority, _ := cmd.Flags().GetString("priority"); priority != "" {
				err = task.SetPriority(priority, ops)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := rep.CommitOperations(ops); err != nil {
			fmt.Fprintf(os.Stderr, "Error committing: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created task %s\n", id)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks by working-set number",
	Run: func(cmd *cobra.Command, args []string) {
		rep, err := openReplica()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening task database: %v\n", err)
			os.Exit(1)
		}
		defer rep.Close()

		ws, err := rep.WorkingSet()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading working set: %v\n", err)
			os.Exit(1)
		}
		largest, err := ws.LargestIndex()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for i := 1; i <= largest; i++ {
			id, ok, err := ws.ByIndex(i)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !ok {
				continue
			}
			task, ok, err := rep.Task(id)
			if err != nil || !ok {
				continue
			}
			description, err := task.Description()
			if err != nil {
				continue
			}
			fmt.Printf("%3d  %s  %s\n", i, id, description)
		}
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <number>",
	Short: "Mark a task completed by its working-set number",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %q is not a task number\n", args[0])
			os.Exit(1)
		}

		rep, err := openReplica()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening task database: %v\n", err)
			os.Exit(1)
		}
		defer rep.Close()

		ws, err := rep.WorkingSet()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading working set: %v\n", err)
			os.Exit(1)
		}
		id, ok, err := ws.ByIndex(index)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no task with number %d\n", index)
			os.Exit(1)
		}
		task, ok, err := rep.Task(id)
		if err != nil || !ok {
			fmt.Fprintf(os.Stderr, "Error: task %s not found\n", id)
			os.Exit(1)
		}

		ops := taskchampion.NewOperations()
		if err := task.Done(ops); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := rep.CommitOperations(ops); err != nil {
			fmt.Fprintf(os.Stderr, "Error committing: %v\n", err)
			os.Exit(1)
		}
		if err := rep.RebuildWorkingSet(false); err != nil {
			fmt.Fprintf(os.Stderr, "Error rebuilding working set: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Completed task %s\n", id)
	},
}

func init() {
	addCmd.Flags().String("priority", "", "Task priority (H, M, or L)")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(doneCmd)
}
