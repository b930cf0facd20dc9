// Command hashpw reads a password and prints its hash in the format the
// server stores, for seeding credential stores by hand.
//
//	hashpw [-algo bcrypt|argon2id] [-cost N]
//
// On a terminal the password is read without echo and asked for twice.
// Otherwise the first line of stdin is used.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/password"
	"golang.org/x/term"
)

// test seams
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "hashpw:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin *os.File, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hashpw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	algo := fs.String("algo", password.AlgoBcrypt, "hash algorithm: bcrypt or argon2id")
	cost := fs.Int("cost", 10, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}

	hasher, err := password.NewHasher(*algo, *cost, password.DefaultArgon2Params)
	if err != nil {
		return err
	}

	var pw []byte
	if isTerminal(int(stdin.Fd())) {
		pw, err = promptTwice(int(stdin.Fd()), stderr)
	} else {
		pw, err = readLine(stdin)
	}
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if len(pw) == 0 {
		return errors.New("empty password")
	}

	hash, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func promptTwice(fd int, w io.Writer) ([]byte, error) {
	fmt.Fprint(w, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(w, "Repeat: ")
	second, err := readPassword(fd)
	fmt.Fprintln(w)
	defer common.WipeByteArray(second)
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}

	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
