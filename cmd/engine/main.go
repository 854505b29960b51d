// Command engine runs an interactive console over the matching
// engine: buy/sell/cancel/book/help/exit.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"limitbook/internal/config"
	"limitbook/internal/core"
	"limitbook/internal/engine"
)

func main() {
	cfg := config.Load()

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	runConsole(eng, os.Stdin, os.Stdout)

	if err := eng.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Exiting gracefully.")
	os.Exit(0)
}

func runConsole(eng *engine.Engine, in *os.File, out *os.File) {
	fmt.Fprintln(out, "Order Matching Engine (Enter 'help' for commands, 'exit' to quit)")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit":
			return
		case "buy", "sell":
			handlePlace(eng, out, fields[0], scanner)
		case "cancel":
			handleCancel(eng, out, scanner)
		case "book":
			fmt.Fprintln(out, eng.ShowBook())
		case "status":
			handleStatus(eng, out, scanner)
		case "help":
			printHelp(out)
		default:
			fmt.Fprintln(out, "Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func handlePlace(eng *engine.Engine, out *os.File, cmd string, scanner *bufio.Scanner) {
	fmt.Fprint(out, "Enter price and quantity: ")
	price, qty, err := readTwoInts(scanner)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	side := core.Bid
	if cmd == "sell" {
		side = core.Ask
	}

	trades, err := eng.Place(side, price, qty)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	for _, t := range trades {
		fmt.Fprintf(out, "Trade: id=%d price=%d quantity=%d\n", t.TradeID, t.Price, t.Quantity)
	}
}

func handleCancel(eng *engine.Engine, out *os.File, scanner *bufio.Scanner) {
	fmt.Fprint(out, "Enter Order ID to cancel: ")
	id, err := readOneUint(scanner)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if err := eng.Cancel(id); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Order %d cancellation request processed.\n", id)
}

func handleStatus(eng *engine.Engine, out *os.File, scanner *bufio.Scanner) {
	fmt.Fprint(out, "Enter Order ID: ")
	id, err := readOneUint(scanner)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(out, eng.Status(id))
}

func printHelp(out *os.File) {
	fmt.Fprint(out, "\nAvailable Commands:\n"+
		"  buy      - Place a new buy order.\n"+
		"  sell     - Place a new sell order.\n"+
		"  cancel   - Cancel an existing order by ID.\n"+
		"  book     - Show the top of the order book.\n"+
		"  status   - Show an order's derived status.\n"+
		"  exit     - Save state and exit the application.\n\n")
}

func readTwoInts(scanner *bufio.Scanner) (int64, int64, error) {
	if !scanner.Scan() {
		return 0, 0, errors.New("no input")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) != 2 {
		return 0, 0, errors.New("invalid input. Please enter two numbers")
	}
	price, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid input. Please enter numbers")
	}
	qty, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid input. Please enter numbers")
	}
	return price, qty, nil
}

func readOneUint(scanner *bufio.Scanner) (uint64, error) {
	if !scanner.Scan() {
		return 0, errors.New("no input")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
	if err != nil {
		return 0, errors.New("invalid input. Please enter a number")
	}
	return id, nil
}
