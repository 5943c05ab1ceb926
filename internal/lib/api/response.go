package api

import (
	"encoding/json"
	"net/http"
)

// Response — единый конверт ответа API: HTTP-статус зеркалирует поле code
type Response struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// OK пишет успешный ответ с данными и сообщением
func OK(w http.ResponseWriter, data any, message string) {
	write(w, http.StatusOK, Response{Code: http.StatusOK, Status: StatusSuccess, Data: data, Message: message})
}

// Created пишет ответ 201 для созданных ресурсов
func Created(w http.ResponseWriter, data any, message string) {
	write(w, http.StatusCreated, Response{Code: http.StatusCreated, Status: StatusSuccess, Data: data, Message: message})
}

// Error пишет ответ с ошибкой; детали внутренних ошибок сюда не попадают —
// только сообщение, пригодное для клиента
func Error(w http.ResponseWriter, code int, message string) {
	write(w, code, Response{Code: code, Status: StatusError, Data: nil, Message: message})
}

func write(w http.ResponseWriter, httpStatus int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
