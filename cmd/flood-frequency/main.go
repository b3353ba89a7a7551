package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chrissnell/designflood/internal/log"
	"github.com/chrissnell/designflood/pkg/frequency"
)

func main() {
	var (
		floodsFile = flag.String("floods", "", "Flood table, one \"year discharge\" pair per line (required)")
		surveyFile = flag.String("survey", "", "Historical and surveyed floods, same format")
		bigN       = flag.Int("n", 0, "Survey period in years; enables the extended series")
		l          = flag.Int("l", 0, "Number of continuous floods treated as extraordinary")
		methods    = flag.String("methods", "moment", "Comma-separated estimation methods: moment, fit1, fit2, fit3 or all")
		fitMean    = flag.Bool("fit-mean", false, "Let curve fitting move the mean")
		probs      = flag.String("p", "", "Comma-separated exceedance probabilities (default: the standard grid)")
		debug      = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if *floodsFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -floods <floods.txt> [-survey <survey.txt> -n <years> -l <count>]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	floods, err := readFloods(*floodsFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var series *frequency.Series
	if *surveyFile != "" || *bigN > 0 {
		var survey []frequency.FloodRecord
		if *surveyFile != "" {
			if survey, err = readFloods(*surveyFile); err != nil {
				log.Fatalf("%v", err)
			}
		}
		series, err = frequency.ExtendedSeries(floods, survey, *bigN, *l)
	} else {
		series, err = frequency.ContinuousSeries(floods)
	}
	if err != nil {
		log.Fatalf("building flood series: %v", err)
	}

	ms, err := frequency.ParseMethods(strings.Split(*methods, ",")...)
	if err != nil {
		log.Fatalf("%v", err)
	}
	grid, err := parseProbabilities(*probs)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fitter, err := frequency.NewFitter(series, frequency.FitOptions{Methods: ms, FitMean: *fitMean, Probabilities: grid}, log.GetSugaredLogger())
	if err != nil {
		log.Fatalf("estimating parameters: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Series\t%d floods\textended: %v\n\n", len(series.Points()), series.Extended())
	for _, m := range fitter.Methods() {
		fit, _ := fitter.Get(m)
		fmt.Fprintf(w, "%s\tmean %.3f\tcv %.4f\tcs %.4f\tcs/cv %.2f", m, fit.Parameters.Mean, fit.Parameters.Cv, fit.Parameters.Cs, fit.Parameters.Cs/fit.Parameters.Cv)
		if fit.FellBack {
			fmt.Fprint(w, "\t(fit did not converge; moment estimate)")
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	table, err := fitter.Result(fitter.Active().Method)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("\nDesign values (%s)\n", fitter.Active().Method)
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "P (%)\tKp\tQ (m³/s)\t")
	for _, v := range table {
		fmt.Fprintf(w, "%g\t%.3f\t%.1f\t\n", v.P*100, v.Kp, v.Q)
	}
	w.Flush()
}

func readFloods(path string) ([]frequency.FloodRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flood table: %w", err)
	}
	defer f.Close()
	return frequency.ParseFloods(f)
}

func parseProbabilities(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var grid []float64
	for _, field := range strings.Split(s, ",") {
		p, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("bad probability %q: %w", field, err)
		}
		grid = append(grid, p)
	}
	return grid, nil
}
