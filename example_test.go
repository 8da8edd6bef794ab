package hydrate_test

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jinzhu/gorm"

	"github.com/coursehero/hydrate/v2"
)

//A single query can be provided using hydrate.NewQuery. The root model is given with Model, optionally restricted to
//the relationships to load. Every table joined in the query is matched to a relationship of the model, or of a model
//joined before it, and is selected under its alias.
//The query may start with FROM or with a SELECT whose select list is replaced.
func ExampleQuery() {
	var db *gorm.DB

	//example structs
	type Author struct {
		AuthorID uint `gorm:"primary_key"`
		Name     string
	}

	type Exercise struct {
		ExerciseID uint `gorm:"primary_key"`
		SectionID  uint
		Name       string
	}

	type Section struct {
		SectionID  *uint `gorm:"primary_key"`
		TextbookID uint
		Title      string

		Exercises []Exercise `gorm:"foreignkey:SectionID;association_foreignkey:SectionID"`
	}

	type Textbook struct {
		TextbookID uint `gorm:"primary_key"`
		AuthorID   uint
		Name       string

		Author   Author     `gorm:"foreignkey:AuthorID;association_foreignkey:AuthorID"`
		Sections []*Section `gorm:"foreignkey:TextbookID;association_foreignkey:TextbookID"`
	}

	var textbooks []Textbook
	err := hydrate.NewQuery(db, `FROM textbooks t
    LEFT JOIN sections s on t.textbook_id = s.textbook_id
	LEFT JOIN exercises e ON e.section_id = s.section_id
	LEFT JOIN authors a ON a.author_id = t.author_id
    WHERE t.textbook_id in (?)
	ORDER BY t.textbook_id, s.section_id, e.exercise_id`, 1).
		Model(Textbook{}, "Sections.Exercises", "Author").
		Run(context.Background(), &textbooks)
	if err != nil {
		fmt.Printf("err = %v\n", err)
	}

	//all textbooks are fully loaded with all relationships
	fmt.Printf("%d textbooks loaded\n", len(textbooks))
	for _, t := range textbooks {
		fmt.Printf("Textbook %d has %d sections\n", t.TextbookID, len(t.Sections))
		for _, s := range t.Sections {
			fmt.Printf("Section %d has %d exercises\n", *s.SectionID, len(s.Exercises))
		}
	}
}

//MultiQuery runs independent queries concurrently. The results of query i are decoded into output i.
func ExampleMultiQuery() {
	var db *gorm.DB

	//example tables
	type Author struct {
		AuthorID uint `gorm:"primary_key"`
		Name     string
	}

	type Section struct {
		SectionID  *uint `gorm:"primary_key"`
		TextbookID uint
		Title      string
	}

	type Textbook struct {
		TextbookID uint `gorm:"primary_key"`
		AuthorID   uint
		Name       string

		Author   Author     `gorm:"foreignkey:AuthorID;association_foreignkey:AuthorID"`
		Sections []*Section `gorm:"foreignkey:TextbookID;association_foreignkey:TextbookID"`
	}

	var textbooks []Textbook
	var authors []Author
	err := hydrate.MultiQuery{
		hydrate.NewQuery(db, `FROM textbooks t
    LEFT JOIN sections s on t.textbook_id = s.textbook_id
    WHERE t.textbook_id in (?)
	ORDER BY t.textbook_id, s.section_id`, 1).
			Model(Textbook{}, "Sections"),

		hydrate.NewQuery(db, `FROM authors a
    WHERE a.author_id in (?)
	ORDER BY a.author_id`, 1).
			Model(Author{}),
	}.Run(context.Background(), &textbooks, &authors)

	if err != nil {
		fmt.Printf("err = %v\n", err)
	}

	fmt.Printf("%d textbooks and %d authors loaded\n", len(textbooks), len(authors))
	for _, t := range textbooks {
		fmt.Printf("Textbook %d has %d sections\n", t.TextbookID, len(t.Sections))
	}
}

//Hydrate works on rows that were already read. The relation tree is built by hand here; ParseSchema and LoadModel
//build it from YAML or gorm models.
func ExampleHydrate() {
	order := &hydrate.RelationNode{
		EntityType:       "Order",
		TableName:        "orders",
		PrimaryKeyColumn: "id",
		ScalarFields:     []hydrate.ScalarField{{Name: "id", Column: "id", Kind: hydrate.KindInt}},
	}
	user := &hydrate.RelationNode{
		EntityType:       "User",
		TableName:        "users",
		PrimaryKeyColumn: "id",
		ScalarFields: []hydrate.ScalarField{
			{Name: "id", Column: "id", Kind: hydrate.KindInt},
			{Name: "name", Column: "name", Kind: hydrate.KindString},
		},
		Relations: []hydrate.Relation{{Name: "orders", Cardinality: hydrate.Many, Target: order}},
	}

	aliases, err := hydrate.ResolveJoins(user, hydrate.JoinChain{
		Root: hydrate.TableRef{Name: "users", Alias: "u"},
		Joins: []hydrate.Join{{
			Table: hydrate.TableRef{Name: "orders", Alias: "o"},
			Left:  hydrate.Operand{Alias: "o", Column: "user_id"},
			Right: hydrate.Operand{Alias: "u", Column: "id"},
		}},
	})
	if err != nil {
		panic(err)
	}
	plan, err := hydrate.BuildColumnPlan(aliases)
	if err != nil {
		panic(err)
	}
	fmt.Println(plan.Projection)

	users, err := hydrate.Hydrate(plan.Tags, [][]interface{}{
		{int64(1), "ada", int64(10)},
		{int64(1), "ada", int64(11)},
		{int64(2), "bob", nil},
	})
	if err != nil {
		panic(err)
	}
	out, _ := json.Marshal(users)
	fmt.Println(string(out))

	// Output:
	// [u.id u.name o.id]
	// [{"id":1,"name":"ada","orders":[{"id":10},{"id":11}]},{"id":2,"name":"bob","orders":[]}]
}
