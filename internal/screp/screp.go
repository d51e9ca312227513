// Package screp shells out to the screp replay decoder and parses the text
// of its overview report.
package screp

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const playerTableHeader = "Team  R  APM"

// Player is one row of the overview player table. Race is empty when the
// single-letter column was not one of P, T, Z.
type Player struct {
	Team int
	Race string
	Name string
}

// Overview is the parsed overview report.
type Overview struct {
	Winner  string
	Players []Player
}

// Runner invokes the external screp binary.
type Runner struct {
	cmd string
}

func NewRunner(cmd string) *Runner {
	return &Runner{cmd: cmd}
}

// Available reports whether the binary can be resolved on PATH.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.cmd)
	return err == nil
}

// Overview runs the overview subcommand against a replay file and returns
// its standard output.
func (r *Runner) Overview(ctx context.Context, replayPath string) (string, error) {
	out, err := exec.CommandContext(ctx, r.cmd, "-overview", replayPath).Output()
	if err != nil {
		return "", fmt.Errorf("run %s on %s: %w", r.cmd, replayPath, err)
	}
	return string(out), nil
}

// ParseOverview scans the report for the winner line and the player table.
// Rows that do not parse are skipped.
func ParseOverview(text string) Overview {
	var ov Overview
	inPlayers := false
	for _, line := range strings.Split(text, "\n") {
		l := strings.TrimRight(line, " \t\r")
		if strings.HasPrefix(strings.ToLower(l), "winner") {
			if _, v, ok := strings.Cut(l, ":"); ok {
				ov.Winner = strings.TrimSpace(v)
			}
		}
		if strings.HasPrefix(l, playerTableHeader) {
			inPlayers = true
			continue
		}
		if !inPlayers || strings.TrimSpace(l) == "" {
			continue
		}
		parts := strings.Fields(l)
		if len(parts) < 6 {
			continue
		}
		team, err := strconv.Atoi(parts[0])
		if err != nil {
			team = 0
		}
		ov.Players = append(ov.Players, Player{
			Team: team,
			Race: raceFromLetter(parts[1]),
			Name: strings.Join(parts[5:], " "),
		})
	}
	return ov
}

// ParseDurationSeconds finds the report's length line and converts its
// MM:SS or HH:MM:SS value to seconds.
func ParseDurationSeconds(text string) (int, bool) {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(strings.ToLower(line), "length") {
			continue
		}
		value := line
		if _, rest, ok := strings.Cut(line, ":"); ok {
			value = rest
		}
		parts := strings.Split(strings.TrimSpace(value), ":")
		if len(parts) < 2 {
			continue
		}

		hours := 0
		minutesIdx, secondsIdx := 0, 1
		if len(parts) == 3 {
			h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err == nil {
				hours = h
			}
			minutesIdx, secondsIdx = 1, 2
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(parts[minutesIdx]))
		if err != nil {
			continue
		}
		secondsFields := strings.Fields(parts[secondsIdx])
		if len(secondsFields) == 0 {
			continue
		}
		seconds, err := strconv.Atoi(secondsFields[0])
		if err != nil {
			continue
		}
		return hours*3600 + minutes*60 + seconds, true
	}
	return 0, false
}

func raceFromLetter(letter string) string {
	switch strings.ToUpper(letter) {
	case "P":
		return "Protoss"
	case "T":
		return "Terran"
	case "Z":
		return "Zerg"
	default:
		return ""
	}
}
