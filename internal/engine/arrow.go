package engine

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"covidboard/internal/models"
)

// ArrowSchema is the column layout of an exported filtered dataset.
var ArrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "Country", Type: arrow.BinaryTypes.String},
	{Name: "Date", Type: arrow.FixedWidthTypes.Date32},
	{Name: "Confirmed", Type: arrow.PrimitiveTypes.Int64},
	{Name: "Recovered", Type: arrow.PrimitiveTypes.Int64},
	{Name: "Deaths", Type: arrow.PrimitiveTypes.Int64},
	{Name: "Active", Type: arrow.PrimitiveTypes.Int64},
	{Name: "DailyNewCases", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// WriteArrow writes rows to w as an Arrow IPC stream with a single record batch.
func WriteArrow(w io.Writer, rows models.FilteredDataset) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, ArrowSchema)
	defer b.Release()

	country := b.Field(0).(*array.StringBuilder)
	date := b.Field(1).(*array.Date32Builder)
	confirmed := b.Field(2).(*array.Int64Builder)
	recovered := b.Field(3).(*array.Int64Builder)
	deaths := b.Field(4).(*array.Int64Builder)
	active := b.Field(5).(*array.Int64Builder)
	dailyNew := b.Field(6).(*array.Int64Builder)

	for _, r := range rows {
		country.Append(r.Country)
		date.Append(arrow.Date32FromTime(r.Date.Time()))
		confirmed.Append(r.Confirmed)
		recovered.Append(r.Recovered)
		deaths.Append(r.Deaths)
		active.Append(r.Active)
		dailyNew.Append(r.DailyNewCases)
	}

	rec := b.NewRecord()
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(ArrowSchema), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("arrow: write record: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("arrow: close stream: %w", err)
	}
	return nil
}
