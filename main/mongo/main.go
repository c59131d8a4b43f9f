package main

import (
	"github.com/wal-g/initsync/cmd/mongo"
)

func main() {
	mongo.Execute()
}
