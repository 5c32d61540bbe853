// cmd/cart/commands.go

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/norun9/storefront-cart/cart"
	"github.com/norun9/storefront-cart/cartstore"
	"github.com/pkg/errors"
)

const usage = `usage: cart [flags] <command>

commands:
  list                   print the cart
  add <id>               add one unit of a product
  remove <id>            remove a product
  update <id> <amount>   set the amount of a product
  clear                  delete the saved cart
  ping                   check the persistence backend
  shell                  read commands from stdin
`

var errUsage = errors.New("invalid usage")

// app runs commands against one cart session.
type app struct {
	store   *cart.Store
	backend cartstore.ICartStore
	in      io.Reader
	out     io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "list", "ls":
		if len(rest) != 0 {
			return errUsage
		}
		a.list()
	case "add":
		id, err := productID(rest, 1)
		if err != nil {
			return err
		}
		a.store.AddProduct(ctx, id)
	case "remove", "rm":
		id, err := productID(rest, 1)
		if err != nil {
			return err
		}
		a.store.RemoveProduct(ctx, id)
	case "update":
		id, err := productID(rest, 2)
		if err != nil {
			return err
		}
		amount, err := strconv.Atoi(rest[1])
		if err != nil {
			return errors.Wrapf(errUsage, "amount %q", rest[1])
		}
		a.store.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: id, Amount: amount})
	case "clear":
		if len(rest) != 0 {
			return errUsage
		}
		return a.store.Clear(ctx)
	case "ping":
		if !a.backend.Ping(ctx) {
			return errors.New("persistence backend is not reachable")
		}
		fmt.Fprintln(a.out, "ok")
	case "shell":
		if len(rest) != 0 {
			return errUsage
		}
		return a.shell(ctx)
	default:
		return errors.Wrapf(errUsage, "unknown command %q", cmd)
	}
	return nil
}

// shell runs one command per input line against the same session until EOF
// or "exit".
func (a *app) shell(ctx context.Context) error {
	scanner := bufio.NewScanner(a.in)
	fmt.Fprint(a.out, "> ")
	for scanner.Scan() {
		line := strings.Fields(scanner.Text())
		switch {
		case len(line) == 0:
		case line[0] == "exit" || line[0] == "quit":
			return nil
		case line[0] == "shell":
			fmt.Fprintln(a.out, "already in a shell")
		case line[0] == "help":
			fmt.Fprint(a.out, usage)
		default:
			if err := a.run(ctx, line); err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(a.out, "> ")
	}
	return errors.Wrap(scanner.Err(), "read input")
}

func (a *app) list() {
	products := a.store.Cart()
	if len(products) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAMOUNT\tPRICE\tSUBTOTAL")
	for _, p := range products {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.2f\t%s\n", p.ID, p.Title, p.Amount, p.Price, p.Subtotal().StringFixed(2))
	}
	summary := cart.Totals(products)
	fmt.Fprintf(w, "\t\t%d\t\t%s\n", summary.Items, summary.Total.StringFixed(2))
	_ = w.Flush()
}

func productID(args []string, want int) (int, error) {
	if len(args) != want {
		return 0, errUsage
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.Wrapf(errUsage, "product id %q", args[0])
	}
	return id, nil
}
