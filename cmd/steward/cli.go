// Package main defines the CLI structure using kong.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"steward/internal/session"
)

// CLI defines the command-line interface.
type CLI struct {
	Config string `help:"Config file path" type:"path"`

	Start    StartCmd    `cmd:"" help:"Start a new session from a natural-language request"`
	Status   StatusCmd   `cmd:"" help:"Show a session snapshot"`
	Advance  AdvanceCmd  `cmd:"" help:"Advance a session through its current stage"`
	Approve  ApproveCmd  `cmd:"" help:"Approve the pending plan or review"`
	Reject   RejectCmd   `cmd:"" help:"Reject the pending plan or review"`
	Clarify  ClarifyCmd  `cmd:"" help:"Answer a clarifying question"`
	Cancel   CancelCmd   `cmd:"" help:"Cancel a session"`
	Watch    WatchCmd    `cmd:"" help:"Stream session events"`
	Sessions SessionsCmd `cmd:"" help:"List sessions"`
	Expire   ExpireCmd   `cmd:"" help:"Expire sessions idle past the approval timeout"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// StartCmd starts a session and drives it to its first checkpoint.
type StartCmd struct {
	Request string `arg:"" help:"Natural-language request"`
}

func (c *StartCmd) Run(rt *runtime) error {
	ctx := context.Background()
	sess, err := rt.orch.Start(ctx, c.Request)
	if err != nil {
		return err
	}
	sess, err = rt.drive(ctx, sess.ID)
	if err != nil {
		return err
	}
	return printJSON(sess)
}

// StatusCmd prints a session snapshot.
type StatusCmd struct {
	ID string `arg:"" help:"Session ID"`
}

func (c *StatusCmd) Run(rt *runtime) error {
	sess, err := rt.orch.GetStatus(c.ID)
	if err != nil {
		return err
	}
	return printJSON(sess)
}

// AdvanceCmd advances a session until its next checkpoint.
type AdvanceCmd struct {
	ID string `arg:"" help:"Session ID"`
}

func (c *AdvanceCmd) Run(rt *runtime) error {
	sess, err := rt.drive(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(sess)
}

// ApproveCmd approves the pending plan or review.
type ApproveCmd struct {
	ID      string `arg:"" help:"Session ID"`
	Message string `short:"m" help:"Optional note for the feedback log"`
}

func (c *ApproveCmd) Run(rt *runtime) error {
	return submitAndDrive(rt, c.ID, session.DecisionApprove, c.Message)
}

// RejectCmd rejects the pending plan or review.
type RejectCmd struct {
	ID      string `arg:"" help:"Session ID"`
	Message string `short:"m" help:"Why it was rejected (feeds the next planning pass)"`
}

func (c *RejectCmd) Run(rt *runtime) error {
	return submitAndDrive(rt, c.ID, session.DecisionReject, c.Message)
}

// ClarifyCmd answers a clarifying question.
type ClarifyCmd struct {
	ID     string `arg:"" help:"Session ID"`
	Answer string `arg:"" help:"Answer to the pending question"`
}

func (c *ClarifyCmd) Run(rt *runtime) error {
	return submitAndDrive(rt, c.ID, session.DecisionClarify, c.Answer)
}

// CancelCmd cancels a session.
type CancelCmd struct {
	ID string `arg:"" help:"Session ID"`
}

func (c *CancelCmd) Run(rt *runtime) error {
	sess, err := rt.orch.Cancel(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(sess)
}

// WatchCmd streams a session's events until it reaches a terminal state.
type WatchCmd struct {
	ID string `arg:"" help:"Session ID"`
}

func (c *WatchCmd) Run(rt *runtime) error {
	ch, cancel, err := rt.orch.Subscribe(c.ID)
	if err != nil {
		return err
	}
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	for evt := range ch {
		if err := enc.Encode(evt); err != nil {
			return err
		}
	}
	return nil
}

// SessionsCmd lists all sessions.
type SessionsCmd struct{}

func (c *SessionsCmd) Run(rt *runtime) error {
	sessions, err := rt.sessions.List()
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		fmt.Printf("%s  %-22s  %s\n", sess.ID, sess.State, sess.Request)
	}
	return nil
}

// ExpireCmd sweeps sessions idle past the approval timeout.
type ExpireCmd struct{}

func (c *ExpireCmd) Run(rt *runtime) error {
	n, err := rt.orch.ExpireIdle()
	if err != nil {
		return err
	}
	fmt.Printf("expired %d session(s)\n", n)
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(rt *runtime) error {
	printVersion()
	return nil
}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}

// submitAndDrive records feedback and advances to the next checkpoint.
func submitAndDrive(rt *runtime, id string, decision session.Decision, message string) error {
	ctx := context.Background()
	sess, err := rt.orch.SubmitFeedback(ctx, id, decision, message)
	if err != nil {
		return err
	}
	if !sess.State.Terminal() {
		sess, err = rt.drive(ctx, sess.ID)
		if err != nil {
			return err
		}
	}
	return printJSON(sess)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
