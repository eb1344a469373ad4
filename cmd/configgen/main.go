// Command configgen writes starter config files for the wsess binaries.
package main

import (
	"flag"
	"log"
	"strings"

	"github.com/danmuck/wsess/internal/config"
)

func main() {
	kind := flag.String("kind", "", "config kind: "+strings.Join(config.Kinds(), "|"))
	output := flag.String("output", "", "output path for config template (defaults to <kind>.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *kind == "" {
		log.Fatalf("configgen: -kind is required (one of %s)", strings.Join(config.Kinds(), "|"))
	}

	target := *output
	if target == "" {
		target = *kind + ".toml"
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
