package modelval

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidPredictions is returned for empty or inconsistent prediction sets.
var ErrInvalidPredictions = errors.New("modelval: invalid predictions")

// Predictions holds ground truth, predicted labels and optional scores for the
// positive class.
type Predictions struct {
	YTrue  []int     `json:"y_true"`
	YPred  []int     `json:"y_pred"`
	YScore []float64 `json:"y_score,omitempty"`
}

func (p *Predictions) validate() error {
	if len(p.YTrue) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidPredictions)
	}
	if len(p.YPred) != len(p.YTrue) {
		return fmt.Errorf("%w: %d labels but %d predictions", ErrInvalidPredictions, len(p.YTrue), len(p.YPred))
	}
	if len(p.YScore) != 0 && len(p.YScore) != len(p.YTrue) {
		return fmt.Errorf("%w: %d labels but %d scores", ErrInvalidPredictions, len(p.YTrue), len(p.YScore))
	}
	return nil
}

// EvalMetrics are support-weighted classification metrics.
type EvalMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

// labels returns the sorted union of classes seen in truth and predictions.
func labels(p *Predictions) []int {
	seen := make(map[int]bool)
	for _, y := range p.YTrue {
		seen[y] = true
	}
	for _, y := range p.YPred {
		seen[y] = true
	}
	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// ConfusionMatrix returns counts with rows indexed by true label and columns
// by predicted label, both in the order of the returned labels.
func ConfusionMatrix(p *Predictions) ([][]int, []int) {
	ls := labels(p)
	index := make(map[int]int, len(ls))
	for i, l := range ls {
		index[l] = i
	}
	m := make([][]int, len(ls))
	for i := range m {
		m[i] = make([]int, len(ls))
	}
	for i := range p.YTrue {
		m[index[p.YTrue[i]]][index[p.YPred[i]]]++
	}
	return m, ls
}

// Evaluate computes accuracy and weighted precision, recall and F1. A class
// with no predicted (or no true) samples contributes zero for the undefined
// ratio.
func Evaluate(p *Predictions) EvalMetrics {
	cm, ls := ConfusionMatrix(p)
	n := float64(len(p.YTrue))

	var correct, precision, recall, f1 float64
	for i := range ls {
		tp := float64(cm[i][i])
		correct += tp

		var predicted, support float64
		for j := range ls {
			predicted += float64(cm[j][i])
			support += float64(cm[i][j])
		}
		pr := safeDiv(tp, predicted)
		rc := safeDiv(tp, support)
		f := safeDiv(2*pr*rc, pr+rc)

		precision += pr * support
		recall += rc * support
		f1 += f * support
	}
	return EvalMetrics{
		Accuracy:  correct / n,
		Precision: precision / n,
		Recall:    recall / n,
		F1Score:   f1 / n,
	}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// ROC is a receiver operating characteristic summary.
type ROC struct {
	AUC   float64      `json:"auc"`
	Curve [][2]float64 `json:"curve"`
}

// ComputeROC returns the ROC curve for a binary problem, treating the larger
// label as positive. It returns nil when scores are missing or the truth
// holds other than exactly two classes.
func ComputeROC(p *Predictions) *ROC {
	if len(p.YScore) != len(p.YTrue) || len(p.YTrue) == 0 {
		return nil
	}
	classes := make(map[int]bool)
	positive := p.YTrue[0]
	for _, y := range p.YTrue {
		classes[y] = true
		if y > positive {
			positive = y
		}
	}
	if len(classes) != 2 {
		return nil
	}

	scores := make([]float64, len(p.YScore))
	copy(scores, p.YScore)
	isPositive := make([]bool, len(p.YTrue))
	for i, y := range p.YTrue {
		isPositive[i] = y == positive
	}
	stat.SortWeightedLabeled(scores, isPositive, nil)

	tpr, fpr, _ := stat.ROC(nil, scores, isPositive, nil)
	roc := &ROC{AUC: integrate.Trapezoidal(fpr, tpr)}

	step := len(fpr) / 10
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(fpr); i += step {
		roc.Curve = append(roc.Curve, [2]float64{fpr[i], tpr[i]})
	}
	return roc
}
