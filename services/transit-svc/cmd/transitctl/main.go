// transitctl - операторская утилита: перебор путей на наборе данных,
// проверка наборов, офлайн-отчёты и запросы к работающему сервису.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
