package main

import (
	"encoding/json"
	"log"
	"os"

	_ "github.com/samuelfneumann/goppg/agent/nonlinear/discrete/ppg"
	"github.com/samuelfneumann/goppg/experiment"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %v config.json", os.Args[0])
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("could not read config: %v", err)
	}
	var c experiment.Config
	if err := json.Unmarshal(data, &c); err != nil {
		log.Fatalf("could not decode config: %v", err)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	exp, err := c.CreateExp(logger)
	if err != nil {
		log.Fatal(err)
	}

	if err := exp.Run(); err != nil {
		log.Fatal(err)
	}
	if c.MetricsFile != "" {
		if err := exp.Save(c.MetricsFile); err != nil {
			log.Fatal(err)
		}
	}
}
