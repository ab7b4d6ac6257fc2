package extract

import (
	"reflect"
	"testing"
)

func TestSchema(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{
			name: "comma separated",
			data: "name,age,active\nalice,30,true\n",
			want: []string{"name", "age", "active"},
		},
		{
			name: "tab separated",
			data: "name\tage\tactive\nalice\t30\ttrue\n",
			want: []string{"name", "age", "active"},
		},
		{
			name: "semicolon separated",
			data: "name;age;active\nalice;30;true\n",
			want: []string{"name", "age", "active"},
		},
		{
			name: "header whitespace trimmed",
			data: " name , age \nalice,30\n",
			want: []string{"name", "age"},
		},
		{
			name: "empty input",
			data: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Schema([]byte(tt.data))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Schema() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRows(t *testing.T) {
	data := "name,age,score,active\nalice,30,91.5,true\nbob,25,78.0,false\n"

	rows := Rows([]byte(data))
	if len(rows) != 2 {
		t.Fatalf("Rows() returned %d records, want 2", len(rows))
	}

	want := Record{"name": "alice", "age": int64(30), "score": 91.5, "active": true}
	if !reflect.DeepEqual(rows[0], want) {
		t.Errorf("rows[0] = %v, want %v", rows[0], want)
	}
	if rows[1]["name"] != "bob" || rows[1]["active"] != false {
		t.Errorf("rows[1] = %v", rows[1])
	}
}

func TestRowsRaggedAndEmpty(t *testing.T) {
	t.Run("ragged row keeps available fields", func(t *testing.T) {
		rows := Rows([]byte("a,b,c\n1,2\n"))
		if len(rows) != 1 {
			t.Fatalf("got %d rows, want 1", len(rows))
		}
		if rows[0]["a"] != int64(1) || rows[0]["b"] != int64(2) {
			t.Errorf("row = %v", rows[0])
		}
		if _, ok := rows[0]["c"]; ok {
			t.Errorf("missing cell should be absent, got %v", rows[0]["c"])
		}
	})

	t.Run("header only yields no rows", func(t *testing.T) {
		rows := Rows([]byte("a,b,c\n"))
		if len(rows) != 0 {
			t.Errorf("got %d rows, want 0", len(rows))
		}
	})

	t.Run("empty input yields nil", func(t *testing.T) {
		if rows := Rows(nil); rows != nil {
			t.Errorf("Rows(nil) = %v, want nil", rows)
		}
	})
}

func TestCoerceCell(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"3.14", 3.14},
		{"true", true},
		{"false", false},
		{"hello", "hello"},
		{" padded ", "padded"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := coerceCell(tt.in); got != tt.want {
			t.Errorf("coerceCell(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
		}
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3", ','},
		{"tab", "a\tb\tc\n1\t2\t3", '\t'},
		{"semicolon", "a;b;c\n1;2;3", ';'},
		{"comma wins ties", "a\n1", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffDelimiter([]byte(tt.data)); got != tt.want {
				t.Errorf("sniffDelimiter() = %q, want %q", got, tt.want)
			}
		})
	}
}
