package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/eleves/internal/config"
	"github.com/JonMunkholm/eleves/internal/core"
	"github.com/JonMunkholm/eleves/internal/database"
)

var (
	errHelp       = errors.New("help provided")
	errRowsFailed = errors.New("some rows failed")
)

type commandLine struct {
	stdout    io.Writer
	logger    *slog.Logger
	importCfg config.ImportConfig
	// connect opens the real store; dry runs use a MemoryStore instead.
	connect func(ctx context.Context) (core.Store, func(), error)
	now     func() time.Time
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.stdout, "Usage:")
	fmt.Fprintln(cli.stdout, "  import -tenant ECOLE_ID -file FILE [-dry-run] - import students from an .xlsx or .csv file")
	fmt.Fprintln(cli.stdout, "  export -tenant ECOLE_ID [-out FILE]           - export the school's students")
	fmt.Fprintln(cli.stdout, "  template [-out FILE]                          - write an empty import workbook")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("import", flag.ContinueOnError)
	importTenant := importCmd.String("tenant", "", "The school (ecole) id.")
	importFile := importCmd.String("file", "", "The .xlsx or .csv file to import.")
	importDryRun := importCmd.Bool("dry-run", false, "Validate and simulate the import in memory.")

	exportCmd := flag.NewFlagSet("export", flag.ContinueOnError)
	exportTenant := exportCmd.String("tenant", "", "The school (ecole) id.")
	exportOut := exportCmd.String("out", "", "Output file (default eleves_export_{date}.xlsx).")

	templateCmd := flag.NewFlagSet("template", flag.ContinueOnError)
	templateOut := templateCmd.String("out", "modele_import_eleves.xlsx", "Output file.")

	for _, fs := range []*flag.FlagSet{importCmd, exportCmd, templateCmd} {
		fs.SetOutput(cli.stdout)
	}

	switch args[1] {
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importTenant == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importFile(*importTenant, *importFile, *importDryRun)
	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *exportTenant == "" {
			exportCmd.Usage()
			return errHelp
		}
		out := *exportOut
		if out == "" {
			out = core.ExportFileName(cli.clock())
		}
		return cli.export(*exportTenant, out)
	case "template":
		if err := templateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return writeFile(*templateOut, core.ImportTemplate)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) importFile(tenantID, path string, dryRun bool) error {
	ctx := context.Background()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sheet, err := core.ReadSpreadsheet(f, filepath.Base(path))
	if err != nil {
		return err
	}

	if report := core.ValidateRows(sheet.Header, sheet.Rows); !report.OK() {
		for _, e := range report.Errors {
			fmt.Fprintln(cli.stdout, e.Error())
		}
		if report.Truncated {
			fmt.Fprintf(cli.stdout, "... (affichage limité à %d erreurs)\n", core.MaxValidationErrors)
		}
		return report.Err()
	}

	store, closeStore, err := cli.openStore(ctx, dryRun)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := core.NewService(store, cli.serviceConfig())
	outcome, err := svc.RunImport(ctx, tenantID, sheet, func(p core.ImportProgress) {
		cli.logger.Debug("import progress", "current", p.Current, "total", p.Total)
	})
	if err != nil {
		return err
	}

	cli.printOutcome(outcome, dryRun)
	if outcome.ErrorCount > 0 {
		return errRowsFailed
	}
	return nil
}

func (cli *commandLine) export(tenantID, out string) error {
	ctx := context.Background()

	store, closeStore, err := cli.openStore(ctx, false)
	if err != nil {
		return err
	}
	defer closeStore()

	var n int
	err = writeFile(out, func(w io.Writer) error {
		var err error
		n, err = core.ExportStudents(ctx, store, tenantID, w)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.stdout, "%d élève(s) exporté(s) dans %s\n", n, out)
	return nil
}

func (cli *commandLine) openStore(ctx context.Context, dryRun bool) (core.Store, func(), error) {
	if dryRun {
		return database.NewMemoryStore(), func() {}, nil
	}
	return cli.connect(ctx)
}

func (cli *commandLine) serviceConfig() core.ServiceConfig {
	return core.ServiceConfig{
		MaxMatriculeSeq: cli.importCfg.MaxMatriculeSeq,
		MatriculeYear:   cli.importCfg.MatriculeYear,
		Timeout:         cli.importCfg.Timeout,
		Now:             cli.now,
		Logger:          cli.logger,
	}
}

func (cli *commandLine) printOutcome(o *core.ImportOutcome, dryRun bool) {
	if dryRun {
		fmt.Fprintln(cli.stdout, "Simulation : aucune donnée n'a été enregistrée.")
	}
	fmt.Fprintf(cli.stdout, "%d/%d élève(s) importé(s) en %s\n", o.SuccessCount, o.Total, o.Duration.Round(time.Millisecond))
	for _, e := range o.Errors {
		fmt.Fprintln(cli.stdout, e)
	}
}

func (cli *commandLine) clock() time.Time {
	if cli.now != nil {
		return cli.now()
	}
	return time.Now()
}

// writeFile creates path and fills it with write, removing it on failure.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
