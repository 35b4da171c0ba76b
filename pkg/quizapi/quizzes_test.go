package quizapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestSaveQuizInheritsQuestionType(t *testing.T) {
	t.Parallel()
	received := make(chan SavedQuizRequest, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/saved-quizzes/", func(writer http.ResponseWriter, request *http.Request) {
		var payload SavedQuizRequest
		_ = json.NewDecoder(request.Body).Decode(&payload)
		received <- payload
		_, _ = writer.Write([]byte(`{"id":"q1"}`))
	})
	client := newTestClient(t, mux)

	result, err := client.SaveQuiz(context.Background(), SavedQuizRequest{
		Title:        "Geometry",
		QuestionType: "mcq",
		Questions: []QuizQuestion{
			{Question: "Angles in a triangle?", Options: []string{"180", "360"}},
			{Question: "Define a circle", QuestionType: "short"},
		},
	})
	if err != nil {
		t.Fatalf("save quiz: %v", err)
	}
	if string(result) != `{"id":"q1"}` {
		t.Fatalf("unexpected result %s", result)
	}
	payload := <-received
	if payload.Questions[0].QuestionType != "mcq" || payload.Questions[1].QuestionType != "short" {
		t.Fatalf("unexpected question types: %#v", payload.Questions)
	}

	if _, emptyErr := client.SaveQuiz(context.Background(), SavedQuizRequest{Title: "Empty"}); !errors.Is(emptyErr, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", emptyErr)
	}
}

func TestFolderRoutes(t *testing.T) {
	t.Parallel()
	seen := make(chan string, 8)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/", func(writer http.ResponseWriter, request *http.Request) {
		seen <- request.Method + " " + request.URL.Path + "?" + request.URL.RawQuery
		if request.URL.Path == "/api/folders/create" {
			_, _ = writer.Write([]byte(`{"folder":{"id":"f1","name":"Math"}}`))
			return
		}
		_, _ = writer.Write([]byte(`{"message":"ok"}`))
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	folder, err := client.CreateFolder(ctx, "u1", "Math")
	if err != nil || string(folder) != `{"id":"f1","name":"Math"}` {
		t.Fatalf("unexpected folder %s %v", folder, err)
	}
	calls := []func() error{
		func() error { _, callErr := client.Folders(ctx, "u1"); return callErr },
		func() error { _, callErr := client.RenameFolder(ctx, "f1", "Algebra"); return callErr },
		func() error { _, callErr := client.AddQuizToFolder(ctx, "f1", "q1"); return callErr },
		func() error { _, callErr := client.RemoveQuizFromFolder(ctx, "f1", "q1"); return callErr },
		func() error { _, callErr := client.DeleteFolder(ctx, "f1"); return callErr },
	}
	for _, call := range calls {
		if callErr := call(); callErr != nil {
			t.Fatalf("folder call failed: %v", callErr)
		}
	}

	expected := []string{
		"POST /api/folders/create?",
		"GET /api/folders/u1?",
		"PUT /api/folders/f1/rename?new_name=Algebra",
		"POST /api/folders/f1/add_quiz?",
		"POST /api/folders/f1/remove/q1?",
		"DELETE /api/folders/f1?",
	}
	for _, want := range expected {
		if got := <-seen; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestSavedQuizRoutes(t *testing.T) {
	t.Parallel()
	seen := make(chan string, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/saved-quizzes/", func(writer http.ResponseWriter, request *http.Request) {
		seen <- request.Method + " " + request.URL.EscapedPath()
		if request.Method == http.MethodGet {
			_, _ = writer.Write([]byte(`[{"id":"q1","title":"Geometry"}]`))
			return
		}
		_, _ = writer.Write([]byte(`{"message":"deleted"}`))
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	quizzes, err := client.SavedQuizzes(ctx)
	if err != nil || string(quizzes) != `[{"id":"q1","title":"Geometry"}]` {
		t.Fatalf("unexpected saved quizzes %s %v", quizzes, err)
	}
	deleted, err := client.DeleteSavedQuiz(ctx, "q 1")
	if err != nil || string(deleted) != `{"message":"deleted"}` {
		t.Fatalf("unexpected delete answer %s %v", deleted, err)
	}

	for _, want := range []string{"GET /api/saved-quizzes/", "DELETE /api/saved-quizzes/q%201"} {
		if got := <-seen; got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestSavedQuizDeleteSurfacesNotFound(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/saved-quizzes/", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		_, _ = writer.Write([]byte(`{"detail":"Quiz not found"}`))
	})
	client := newTestClient(t, mux)

	_, err := client.DeleteSavedQuiz(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}
