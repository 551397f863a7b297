package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/sizebot/sizebot/internal/bulk"
	"github.com/sizebot/sizebot/internal/lookup"
	"github.com/sizebot/sizebot/internal/storage"
)

const greeting = "Привет! Я твой бот. Напиши код, чтобы получить размеры!"

// ValidSize reports whether size has the form N*N*N with decimal digits.
func ValidSize(size string) bool {
	parts := strings.Split(size, "*")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func (d *Dispatcher) start(_ context.Context, _ Message) (Response, string) {
	return text(greeting), statusOK
}

func (d *Dispatcher) add(ctx context.Context, msg Message) (Response, string) {
	data := bulk.SplitFields(msg.Text, 4)
	if len(data) != 4 {
		return text("Используйте формат: /add <код> <размер> <описание>.\n" +
			"Пример: /add 223002G4GC 60*45*40 ГБЦ"), statusInvalid
	}
	rec := storage.Record{
		Code:        strings.TrimSpace(data[1]),
		Size:        strings.TrimSpace(data[2]),
		Description: strings.TrimSpace(data[3]),
	}
	if rec.Code == "" || rec.Description == "" {
		return text("Код и описание не могут быть пустыми."), statusInvalid
	}
	if !ValidSize(rec.Size) {
		return text("Размер должен быть в формате 'число*число*число', например, 60*45*40."), statusInvalid
	}

	if err := d.store.Upsert(ctx, rec); err != nil {
		d.storeError("upsert", err)
		return text("Произошла ошибка при добавлении записи в базу данных."), statusError
	}
	d.log.Info("record added", "code", rec.Code, "size", rec.Size, "description", rec.Description)
	return text("Запись добавлена: %s имеет размеры %s и описание: %s", rec.Code, rec.Size, rec.Description), statusOK
}

// update matches the code exactly, unlike /del and /up_key.
func (d *Dispatcher) update(ctx context.Context, msg Message) (Response, string) {
	data := bulk.SplitFields(msg.Text, 4)
	if len(data) != 4 {
		return text("Используйте формат: /up <код> <новый_размер> <описание>." +
			" Пример: /up 223002G4GC 60*45*45 ГБЦ"), statusInvalid
	}
	rec := storage.Record{
		Code:        strings.TrimSpace(data[1]),
		Size:        strings.TrimSpace(data[2]),
		Description: strings.TrimSpace(data[3]),
	}

	found, err := d.store.Update(ctx, rec)
	if err != nil {
		d.storeError("update", err)
		return text("Произошла ошибка при обновлении записи в базе данных."), statusError
	}
	if !found {
		d.log.Info("record not found", "code", rec.Code)
		return text("Код %s не найден в базе данных.", rec.Code), statusNotFound
	}
	d.log.Info("record updated", "code", rec.Code, "size", rec.Size, "description", rec.Description)
	return text("Обновлено: %s теперь имеет размеры %s с описанием %s", rec.Code, rec.Size, rec.Description), statusOK
}

func (d *Dispatcher) updateKey(ctx context.Context, msg Message) (Response, string) {
	parts := strings.Fields(msg.Text)
	if len(parts) != 3 {
		return text("Используйте команду в формате: /up_key <старый_ключ> <новый_ключ>"), statusInvalid
	}
	oldKey, newKey := parts[1], parts[2]

	res, err := d.store.Rekey(ctx, oldKey, newKey)
	if err != nil {
		d.storeError("rekey", err)
		return text("Произошла ошибка при обновлении ключа."), statusError
	}
	switch res {
	case storage.RekeyTargetExists:
		return text("Ключ '%s' уже существует в базе данных. Обновление невозможно.", newKey), statusRejected
	case storage.RekeyNotFound:
		d.log.Info("key not found", "key", oldKey, "sender", msg.Sender)
		return text("Ключ '%s' не найден в базе данных.", oldKey), statusNotFound
	default:
		d.log.Info("key renamed", "old", oldKey, "new", newKey, "sender", msg.Sender)
		return text("Ключ '%s' успешно обновлён на '%s'.", oldKey, newKey), statusOK
	}
}

func (d *Dispatcher) remove(ctx context.Context, msg Message) (Response, string) {
	data := bulk.SplitFields(msg.Text, 2)
	if len(data) != 2 {
		return text("Используйте формат: /del <код>. Пример: /del 223002G4GC"), statusInvalid
	}
	code := strings.TrimSpace(data[1])

	if err := d.store.Delete(ctx, code); err != nil {
		d.storeError("delete", err)
		return text("Произошла ошибка при удалении кода."), statusError
	}
	remaining, err := d.store.CountMatching(ctx, code)
	if err != nil {
		d.storeError("count", err)
		return text("Произошла ошибка при удалении кода."), statusError
	}
	if remaining == 0 {
		d.log.Info("record deleted", "code", code)
		return text("Код %s успешно удалён.", code), statusOK
	}
	d.log.Warn("record still present after delete", "code", code, "remaining", remaining)
	return text("Не удалось удалить код %s. Код все еще существует в базе.", code), statusError
}

func (d *Dispatcher) showDB(ctx context.Context, _ Message) (Response, string) {
	records, err := d.store.All(ctx)
	if err != nil {
		d.storeError("select", err)
		return text("Произошла ошибка при получении данных из базы."), statusError
	}
	if len(records) == 0 {
		return text("База данных пуста."), statusEmpty
	}

	path, err := d.writeTemp("Show_db", func(f *os.File) error {
		_, err := f.WriteString(bulk.Join(records))
		return err
	})
	if err != nil {
		d.log.Error("write show file", "error", err)
		return text("Произошла ошибка при записи файла."), statusError
	}
	return Response{Document: path, temp: []string{path}}, statusOK
}

func (d *Dispatcher) exportDB(ctx context.Context, _ Message) (Response, string) {
	records, err := d.store.All(ctx)
	if err != nil {
		d.storeError("select", err)
		return text("Произошла ошибка при экспорте базы данных."), statusError
	}
	if len(records) == 0 {
		return text("База данных пуста. Нечего экспортировать."), statusEmpty
	}

	path, err := d.writeTemp("exported_sizes", func(f *os.File) error {
		return bulk.Write(f, records)
	})
	if err != nil {
		d.log.Error("write export file", "error", err)
		return text("Произошла ошибка при записи файла."), statusError
	}
	d.archive(ctx, path)

	return Response{
		Text:     fmt.Sprintf("Данные экспортированы в файл с %d записями.", len(records)),
		Document: path,
		temp:     []string{path},
	}, statusOK
}

// archive copies an export to the archiver. Failures are logged only.
func (d *Dispatcher) archive(ctx context.Context, path string) {
	if d.archiver == nil {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		d.log.Error("archive: open export", "path", path, "error", err)
		return
	}
	defer f.Close()

	key, err := d.archiver.Archive(ctx, filepath.Base(path), f)
	if err != nil {
		d.log.Error("archive: upload export", "path", path, "error", err)
		return
	}
	d.log.Info("export archived", "key", key)
}

func (d *Dispatcher) updateDB(ctx context.Context, _ Message) (Response, string) {
	name := filepath.Base(d.cfg.BulkPath)
	f, err := os.Open(d.cfg.BulkPath)
	if err != nil {
		d.log.Error("open bulk file", "path", d.cfg.BulkPath, "error", err)
		if os.IsNotExist(err) {
			return text("Файл %s не найден.", name), statusNotFound
		}
		return text("Произошла ошибка при чтении файла %s.", name), statusError
	}
	defer f.Close()

	st, err := bulk.Import(ctx, d.store, f, d.log)
	if d.metrics != nil {
		d.metrics.RecordImport(st.Loaded, st.Skipped, st.Failed)
	}
	if err != nil {
		d.log.Error("bulk import failed", "path", d.cfg.BulkPath, "error", err)
		return text("Произошла ошибка при обновлении базы данных."), statusError
	}
	d.log.Info("bulk import finished", "path", d.cfg.BulkPath,
		"loaded", st.Loaded, "skipped", st.Skipped, "failed", st.Failed)
	return text("База данных успешно обновлена из файла %s. Загружено: %d, пропущено: %d.",
		name, st.Loaded, st.Skipped+st.Failed), statusOK
}

func (d *Dispatcher) query(ctx context.Context, msg Message) Response {
	start := time.Now()
	query := strings.TrimSpace(msg.Text)

	records, err := d.store.All(ctx)
	if err != nil {
		d.storeError("select", err)
		d.log.Error("query failed", "query", query, "error", err)
		return text("Произошла ошибка при обработке запроса.")
	}

	answer, outcome := lookup.Respond(records, query)
	d.log.Info("query answered", "query", query, "sender", msg.Sender, "outcome", string(outcome))
	if d.metrics != nil {
		d.metrics.StoreRecords.Set(float64(len(records)))
		d.metrics.RecordQuery(string(outcome), time.Since(start))
	}
	return text("%s", answer)
}

// writeTemp creates <TempDir>/<prefix>_<timestamp>.txt, fills it and
// returns its path. The file is removed when fill fails.
func (d *Dispatcher) writeTemp(prefix string, fill func(*os.File) error) (path string, err error) {
	if err := os.MkdirAll(d.cfg.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	path = filepath.Join(d.cfg.TempDir, fmt.Sprintf("%s_%s.txt", prefix, d.now().Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	if err := fill(f); err != nil {
		return path, fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
