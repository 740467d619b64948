package telemetry

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// History collects the per-epoch curves rendered in the HTML report.
// All slices are indexed by epoch and must have equal length.
type History struct {
	TrainLosses                  []float64
	TrainSymbolAccuracies        []float64
	TrainSentenceAccuracies      []float64
	TrainWERs                    []float64
	ValidationLosses             []float64
	ValidationSymbolAccuracies   []float64
	ValidationSentenceAccuracies []float64
	ValidationWERs               []float64
	LearningRates                []float64
	GradNorms                    []float64
}

// Epochs returns the number of recorded epochs.
func (h History) Epochs() int {
	return len(h.TrainLosses)
}

type reportSeries struct {
	name   string
	values []float64
}

func lineChart(title string, epochs []string, series ...reportSeries) *charts.Line {
	line := charts.NewLine()

	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "900px",
			Height: "400px",
			Theme:  "light",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
		}),
	)

	line.SetXAxis(epochs)

	for _, s := range series {
		yData := make([]opts.LineData, len(s.values))
		for i, v := range s.values {
			yData[i] = opts.LineData{Value: v}
		}
		line.AddSeries(s.name, yData).
			SetSeriesOptions(
				charts.WithLineChartOpts(opts.LineChart{
					Smooth: opts.Bool(true),
				}),
				charts.WithLabelOpts(opts.Label{
					Show: opts.Bool(false),
				}),
			)
	}

	return line
}

// RenderReport writes an interactive HTML page of training curves to
// outputPath: loss, symbol accuracy, sentence accuracy, word error rate,
// learning rate, and gradient norm across epochs.
func RenderReport(history History, outputPath string) error {
	if history.Epochs() == 0 {
		return fmt.Errorf("no epochs recorded, nothing to render")
	}

	epochs := make([]string, history.Epochs())
	for i := range epochs {
		epochs[i] = strconv.Itoa(i + 1)
	}

	page := components.NewPage()
	page.AddCharts(
		lineChart("Loss", epochs,
			reportSeries{name: "train", values: history.TrainLosses},
			reportSeries{name: "validation", values: history.ValidationLosses},
		),
		lineChart("Symbol Accuracy", epochs,
			reportSeries{name: "train", values: history.TrainSymbolAccuracies},
			reportSeries{name: "validation", values: history.ValidationSymbolAccuracies},
		),
		lineChart("Sentence Accuracy", epochs,
			reportSeries{name: "train", values: history.TrainSentenceAccuracies},
			reportSeries{name: "validation", values: history.ValidationSentenceAccuracies},
		),
		lineChart("Word Error Rate", epochs,
			reportSeries{name: "train", values: history.TrainWERs},
			reportSeries{name: "validation", values: history.ValidationWERs},
		),
		lineChart("Learning Rate", epochs,
			reportSeries{name: "lr", values: history.LearningRates},
		),
		lineChart("Gradient Norm", epochs,
			reportSeries{name: "grad_norm", values: history.GradNorms},
		),
	)

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %v", err)
	}

	return nil
}
