package main

import "github.com/hongjun500/simlink/pkg/logger"

func main() {
	defer logger.Sync()
	Execute()
}
