package hydrate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationNode_Validate(t *testing.T) {
	wrap := func(v interface{}) (interface{}, error) { return v, nil }

	tests := []struct {
		name    string
		build   func() *RelationNode
		wantErr string
	}{
		{
			name:  "valid tree",
			build: shopTree,
		},
		{
			name: "shared node",
			build: func() *RelationNode {
				root := shopTree()
				root.Relations = append(root.Relations, Relation{Name: "first_order", Cardinality: Single, Target: root.Relations[1].Target})
				return root
			},
		},
		{
			name:    "nil",
			build:   func() *RelationNode { return nil },
			wantErr: "nil relation node",
		},
		{
			name: "missing entity type",
			build: func() *RelationNode {
				return &RelationNode{TableName: "users", PrimaryKeyColumn: "id"}
			},
			wantErr: "missing entity type",
		},
		{
			name: "missing table",
			build: func() *RelationNode {
				return &RelationNode{EntityType: "User", PrimaryKeyColumn: "id"}
			},
			wantErr: "missing table name",
		},
		{
			name: "missing primary key",
			build: func() *RelationNode {
				return &RelationNode{EntityType: "User", TableName: "users"}
			},
			wantErr: "missing primary key column",
		},
		{
			name: "duplicate field",
			build: func() *RelationNode {
				root := shopTree()
				root.ScalarFields = append(root.ScalarFields, ScalarField{Name: "orders", Column: "orders"})
				return root
			},
			wantErr: "User.orders: declared more than once",
		},
		{
			name: "field without column",
			build: func() *RelationNode {
				root := shopTree()
				root.ScalarFields[1].Column = ""
				return root
			},
			wantErr: "User.name: missing column",
		},
		{
			name: "unknown kind",
			build: func() *RelationNode {
				root := shopTree()
				root.ScalarFields[1].Kind = ValueKind(42)
				return root
			},
			wantErr: "unsupported value kind ValueKind(42)",
		},
		{
			name: "wrapped without constructor",
			build: func() *RelationNode {
				root := shopTree()
				root.ScalarFields[1].Kind = KindWrapped
				return root
			},
			wantErr: "wrapped kind without a constructor",
		},
		{
			name: "wrapped with constructor",
			build: func() *RelationNode {
				root := shopTree()
				root.ScalarFields[1].Kind = KindWrapped
				root.ScalarFields[1].Wrap = wrap
				return root
			},
		},
		{
			name: "relation without cardinality",
			build: func() *RelationNode {
				root := shopTree()
				root.Relations[0].Cardinality = 0
				return root
			},
			wantErr: "User.profile: unsupported cardinality Cardinality(0)",
		},
		{
			name: "relation without target",
			build: func() *RelationNode {
				root := shopTree()
				root.Relations[0].Target = nil
				return root
			},
			wantErr: "relation without a target",
		},
		{
			name: "invalid nested node",
			build: func() *RelationNode {
				root := shopTree()
				root.Relations[1].Target.PrimaryKeyColumn = ""
				return root
			},
			wantErr: "Order: missing primary key column",
		},
		{
			name: "self reference",
			build: func() *RelationNode {
				root := shopTree()
				root.Relations = append(root.Relations, Relation{Name: "manager", Cardinality: Single, Target: root})
				return root
			},
			wantErr: "relation cycle User -> User",
		},
		{
			name: "indirect cycle",
			build: func() *RelationNode {
				root := shopTree()
				profile := root.Relations[0].Target
				profile.Relations = []Relation{{Name: "user", Cardinality: Single, Target: root}}
				return root
			},
			wantErr: "relation cycle User -> Profile -> User",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMetadata))
			assert.True(t, IsMetadata(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCardinality(t *testing.T) {
	tests := []struct {
		in      string
		want    Cardinality
		wantErr bool
	}{
		{in: "single", want: Single},
		{in: " One ", want: Single},
		{in: "many", want: Many},
		{in: "LIST", want: Many},
		{in: "", wantErr: true},
		{in: "several", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCardinality(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, []string{"single", "many"}, got.String())
		})
	}

	var c Cardinality
	require.NoError(t, c.UnmarshalText([]byte("many")))
	assert.Equal(t, Many, c)
	assert.Error(t, c.UnmarshalText([]byte("some")))
	assert.Equal(t, Many, c)
}
