package quizapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// QuizQuestion is one saved question. Options is nil for free-form questions.
type QuizQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	QuestionType string   `json:"question_type"`
}

// SavedQuizRequest is the payload for SaveQuiz.
type SavedQuizRequest struct {
	Title        string         `json:"title"`
	QuestionType string         `json:"question_type"`
	Questions    []QuizQuestion `json:"questions"`
}

// SaveQuiz stores a quiz. Questions without their own type inherit request.QuestionType.
// The backend answer is returned undecoded.
func (client *Client) SaveQuiz(ctx context.Context, request SavedQuizRequest) (json.RawMessage, error) {
	if len(request.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	questions := make([]QuizQuestion, len(request.Questions))
	for index, question := range request.Questions {
		if question.QuestionType == "" {
			question.QuestionType = request.QuestionType
		}
		questions[index] = question
	}
	request.Questions = questions

	var result json.RawMessage
	err := client.do(ctx, http.MethodPost, "/api/saved-quizzes/", nil, request, &result)
	return result, err
}

// SavedQuizzes lists the user's saved quizzes.
func (client *Client) SavedQuizzes(ctx context.Context) (json.RawMessage, error) {
	var result json.RawMessage
	err := client.do(ctx, http.MethodGet, "/api/saved-quizzes/", nil, nil, &result)
	return result, err
}

// DeleteSavedQuiz removes one saved quiz.
func (client *Client) DeleteSavedQuiz(ctx context.Context, quizID string) (json.RawMessage, error) {
	var result json.RawMessage
	err := client.do(ctx, http.MethodDelete, "/api/saved-quizzes/"+url.PathEscape(quizID), nil, nil, &result)
	return result, err
}

// Folders lists the folders owned by userID.
func (client *Client) Folders(ctx context.Context, userID string) (json.RawMessage, error) {
	var result json.RawMessage
	err := client.do(ctx, http.MethodGet, "/api/folders/"+url.PathEscape(userID), nil, nil, &result)
	return result, err
}

// CreateFolder creates a folder and returns the backend's folder record.
func (client *Client) CreateFolder(ctx context.Context, userID string, name string) (json.RawMessage, error) {
	var result struct {
		Folder json.RawMessage `json:"folder"`
	}
	payload := map[string]string{"user_id": userID, "name": name}
	if err := client.do(ctx, http.MethodPost, "/api/folders/create", nil, payload, &result); err != nil {
		return nil, err
	}
	return result.Folder, nil
}

// RenameFolder renames folderID.
func (client *Client) RenameFolder(ctx context.Context, folderID string, newName string) (json.RawMessage, error) {
	var result json.RawMessage
	query := url.Values{"new_name": []string{newName}}
	err := client.do(ctx, http.MethodPut, "/api/folders/"+url.PathEscape(folderID)+"/rename", query, nil, &result)
	return result, err
}

// DeleteFolder removes folderID.
func (client *Client) DeleteFolder(ctx context.Context, folderID string) (json.RawMessage, error) {
	var result json.RawMessage
	err := client.do(ctx, http.MethodDelete, "/api/folders/"+url.PathEscape(folderID), nil, nil, &result)
	return result, err
}

// AddQuizToFolder files quizID under folderID.
func (client *Client) AddQuizToFolder(ctx context.Context, folderID string, quizID string) (json.RawMessage, error) {
	var result json.RawMessage
	payload := map[string]string{"quiz_id": quizID}
	err := client.do(ctx, http.MethodPost, "/api/folders/"+url.PathEscape(folderID)+"/add_quiz", nil, payload, &result)
	return result, err
}

// RemoveQuizFromFolder unfiles quizID from folderID.
func (client *Client) RemoveQuizFromFolder(ctx context.Context, folderID string, quizID string) (json.RawMessage, error) {
	var result json.RawMessage
	path := "/api/folders/" + url.PathEscape(folderID) + "/remove/" + url.PathEscape(quizID)
	err := client.do(ctx, http.MethodPost, path, nil, nil, &result)
	return result, err
}
