package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/railops/dispatchd/core/model"
)

// Entry is one committed reservation in a flattened, export-friendly form.
type Entry struct {
	Train    string    `json:"train"`
	Resource string    `json:"resource"`
	Entry    time.Time `json:"entry"`
	Exit     time.Time `json:"exit"`
}

// Flatten converts a plan into entries ordered by train, each train's
// reservations staying in route order.
func Flatten(plan *model.Plan) []Entry {
	if plan == nil {
		return nil
	}
	var entries []Entry
	for _, id := range plan.Trains() {
		for _, r := range plan.ByTrain(id) {
			entries = append(entries, Entry{
				Train:    r.Train,
				Resource: r.Resource,
				Entry:    r.Entry,
				Exit:     r.Exit,
			})
		}
	}
	return entries
}

// WriteJSON writes the plan to w in JSON format.
func WriteJSON(w io.Writer, plan *model.Plan) error {
	enc := json.NewEncoder(w)
	return enc.Encode(Flatten(plan))
}

// WriteCSV writes the plan to w in CSV format.
func WriteCSV(w io.Writer, plan *model.Plan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"train", "resource", "entry", "exit"}); err != nil {
		return err
	}
	for _, e := range Flatten(plan) {
		rec := []string{
			e.Train,
			e.Resource,
			e.Entry.Format(time.RFC3339),
			e.Exit.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
